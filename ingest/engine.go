package ingest

import (
	"certvault/metrics"
	"certvault/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxUploadSize is the largest workbook accepted by Ingest.
const MaxUploadSize = 10 * 1024 * 1024

const insertBatchSize = 500

var errMissingCertificateNo = errors.New("missing required unique field: Certificate No.")

type field int

const (
	fieldCertificateNo field = iota
	fieldName
	fieldHospital
	fieldDOI
)

// columns maps each logical field to the header text that must appear in row one.
var columns = []struct {
	field  field
	header string
}{
	{fieldCertificateNo, "Certificate No."},
	{fieldName, "Name"},
	{fieldHospital, "Hospital"},
	{fieldDOI, "DOI"},
}

// Upload is a spreadsheet payload as received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Summary counts what happened to the data rows of one upload.
// FailedToProcess is ProcessingFailures + DBErrors.
type Summary struct {
	TotalRows            int `json:"totalRows"`
	SuccessfullyInserted int `json:"successfullyInserted"`
	FailedToProcess      int `json:"failedToProcess"`
	ProcessingFailures   int `json:"processingFailures"`
	DBErrors             int `json:"dbErrors"`
}

type RowError struct {
	Row    int    `json:"row"` // 1-based sheet row, header is row 1
	Reason string `json:"reason"`
}

type Report struct {
	Summary   Summary    `json:"summary"`
	RowErrors []RowError `json:"rowErrors,omitempty"`
}

// Engine maps spreadsheet rows onto certificates.
type Engine struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func NewEngine(db *gorm.DB, m *metrics.Metrics) *Engine {
	return &Engine{db: db, metrics: m}
}

// Ingest validates and parses an uploaded workbook and stores its rows.
func (e *Engine) Ingest(ctx context.Context, up Upload) (*Report, error) {
	if len(up.Data) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	if !IsSpreadsheet(up.ContentType, up.FileName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, up.FileName)
	}

	rows, err := ReadSheet(up.Data)
	if err != nil {
		e.metrics.IngestRun(false)
		return nil, err
	}
	return e.IngestRows(ctx, up.FileName, rows)
}

// IngestRows stores already-read rows; rows[0] is the header row. Each data row
// is processed on its own, and the insert is unordered so a duplicate
// certificate number only costs its own row.
func (e *Engine) IngestRows(ctx context.Context, fileName string, rows [][]Cell) (*Report, error) {
	if len(rows) < 2 {
		e.metrics.IngestRun(false)
		return nil, ErrEmptySheet
	}

	index, err := resolveColumns(rows[0])
	if err != nil {
		e.metrics.IngestRun(false)
		return nil, err
	}

	dataRows := rows[1:]
	candidates, rowErrs := processRows(dataRows, index)

	report := &Report{
		Summary: Summary{
			TotalRows:          len(dataRows),
			ProcessingFailures: len(rowErrs),
		},
		RowErrors: rowErrs,
	}

	if len(candidates) == 0 {
		e.metrics.IngestRun(false)
		return nil, &NoValidRowsError{ProcessingFailures: len(rowErrs)}
	}

	inserted, err := e.insertUnordered(ctx, candidates)
	if err != nil {
		e.metrics.IngestRun(false)
		return nil, err
	}

	s := &report.Summary
	s.SuccessfullyInserted = inserted
	s.DBErrors = len(candidates) - inserted
	s.FailedToProcess = s.ProcessingFailures + s.DBErrors

	e.metrics.IngestRows(s.SuccessfullyInserted, s.ProcessingFailures, s.DBErrors)
	e.metrics.IngestRun(true)
	e.recordRun(ctx, fileName, report)
	return report, nil
}

func resolveColumns(header []Cell) (map[field]int, error) {
	index := make(map[field]int, len(columns))
	var missing []string
	for _, col := range columns {
		found := -1
		for i, cell := range header {
			if NormalizeText(cell) == col.header {
				found = i
				break
			}
		}
		if found < 0 {
			missing = append(missing, col.header)
			continue
		}
		index[col.field] = found
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return index, nil
}

func processRows(rows [][]Cell, index map[field]int) ([]models.Certificate, []RowError) {
	var (
		out  = make([]models.Certificate, 0, len(rows))
		errs []RowError
	)
	for i, row := range rows {
		sheetRow := i + 2
		cert, err := processRow(row, index, sheetRow)
		if err != nil {
			log.Printf("Row processing failed (row %d): %v", sheetRow, err)
			errs = append(errs, RowError{Row: sheetRow, Reason: err.Error()})
			continue
		}
		out = append(out, cert)
	}
	return out, errs
}

func processRow(row []Cell, index map[field]int, sheetRow int) (models.Certificate, error) {
	cell := func(f field) Cell {
		if i := index[f]; i < len(row) {
			return row[i]
		}
		return Cell{}
	}

	cert := models.Certificate{
		CertificateNo: NormalizeText(cell(fieldCertificateNo)),
		Name:          NormalizeText(cell(fieldName)),
		Hospital:      NormalizeText(cell(fieldHospital)),
	}
	if cert.CertificateNo == "" {
		return cert, errMissingCertificateNo
	}

	doiCell := cell(fieldDOI)
	doi, ok := NormalizeDOI(doiCell)
	if !ok {
		log.Printf("Row %d: unparsable numeric date value (%s) for DOI, treating as empty", sheetRow, doiCell.Value)
	}
	cert.DOI = doi
	return cert, nil
}

// insertUnordered inserts every candidate and skips those whose certificate
// number already exists. It returns how many rows were actually written.
func (e *Engine) insertUnordered(ctx context.Context, certs []models.Certificate) (int, error) {
	res := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certificate_no"}},
			DoNothing: true,
		}).
		CreateInBatches(&certs, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert certificates: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (e *Engine) recordRun(ctx context.Context, fileName string, report *Report) {
	rowErrs, err := json.Marshal(report.RowErrors)
	if err != nil {
		log.Printf("Ingestion audit: encode row errors: %v", err)
		return
	}
	run := models.IngestionRun{
		FileName:             fileName,
		TotalRows:            report.Summary.TotalRows,
		SuccessfullyInserted: report.Summary.SuccessfullyInserted,
		ProcessingFailures:   report.Summary.ProcessingFailures,
		DBErrors:             report.Summary.DBErrors,
		RowErrors:            datatypes.JSON(rowErrs),
	}
	if err := e.db.WithContext(ctx).Create(&run).Error; err != nil {
		log.Printf("Ingestion audit: %v", err)
	}
}
