// Package metrics exposes Prometheus counters for the certificate pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ingestRows    *prometheus.CounterVec
	ingestRuns    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	artifacts     *prometheus.CounterVec
}

// New registers the pipeline metrics with registry. A nil registry returns nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		ingestRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certvault_ingest_rows_total",
			Help: "Spreadsheet rows seen by ingestion, by outcome",
		}, []string{"result"}),
		ingestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certvault_ingest_runs_total",
			Help: "Ingestion calls, by outcome",
		}, []string{"result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certvault_approval_transitions_total",
			Help: "Approval state machine transitions applied",
		}, []string{"transition"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certvault_notifications_total",
			Help: "Emails handed to the mail transport, by kind and outcome",
		}, []string{"kind", "result"}),
		artifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certvault_artifacts_total",
			Help: "Certificate PDFs rendered, by template and outcome",
		}, []string{"template", "result"}),
	}
}

func (m *Metrics) IngestRows(inserted, processingFailures, conflicts int) {
	if m == nil {
		return
	}
	m.ingestRows.WithLabelValues("inserted").Add(float64(inserted))
	m.ingestRows.WithLabelValues("processing_failure").Add(float64(processingFailures))
	m.ingestRows.WithLabelValues("conflict").Add(float64(conflicts))
}

func (m *Metrics) IngestRun(ok bool) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Transition(name string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name).Inc()
}

func (m *Metrics) Notification(kind string, ok bool) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result(ok)).Inc()
}

func (m *Metrics) Artifact(template string, ok bool) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(template, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
