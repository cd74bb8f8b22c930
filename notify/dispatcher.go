// Package notify composes and sends the emails of the approval round-trip: the
// approval request to an administrator, and approved certificates to recipients.
package notify

import (
	"certvault/approval"
	"certvault/metrics"
	"certvault/models"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ApprovalPath is where the emailed links point, relative to the base URL.
const ApprovalPath = "/api/approve-request"

var ErrMissingRecipient = errors.New("missing recipient address")

// Notification is an approval request for one certificate.
type Notification struct {
	To            string
	Subject       string
	Text          string
	CertificateID uint
	CertificateNo string
}

type Dispatcher struct {
	machine *approval.Machine
	mailer  Mailer
	baseURL string
	brand   string
	metrics *metrics.Metrics
}

func NewDispatcher(machine *approval.Machine, mailer Mailer, baseURL, brand string, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		machine: machine,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		brand:   brand,
		metrics: m,
	}
}

// RequestApproval makes sure the certificate has a pending request, then mails
// the administrator an approve link and a reject link.
func (d *Dispatcher) RequestApproval(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.To) == "" {
		return ErrMissingRecipient
	}
	if n.CertificateID == 0 {
		return approval.ErrMissingCertificate
	}

	if err := d.machine.EnsurePending(ctx, n.CertificateID, n.CertificateNo); err != nil {
		return err
	}
	links, err := d.machine.IssueLinks(ctx, n.CertificateID)
	if err != nil {
		return err
	}

	approveURL := d.ActionURL(n.CertificateID, approval.ActionApprove, links.Approve)
	rejectURL := d.ActionURL(n.CertificateID, approval.ActionReject, links.Reject)
	expires := links.ExpiresAt.UTC().Format("02 Jan 2006 15:04 MST")

	subject := n.Subject
	if subject == "" {
		subject = "Approval required: " + n.CertificateNo
	}
	text := fmt.Sprintf("%s\n\nApprove: %s\nReject: %s\n", n.Text, approveURL, rejectURL)

	err = d.mailer.Send(ctx, Message{
		To:      []string{n.To},
		Subject: subject,
		Text:    text,
		HTML:    emailTemplate(d.brand, "Approval Required", approvalBody(n.Text, approveURL, rejectURL, expires)),
	})
	d.metrics.Notification("approval_request", err == nil)
	if err != nil {
		return fmt.Errorf("send approval request: %w", err)
	}
	return nil
}

// RequestFor builds the standard approval request for a locked action.
func (d *Dispatcher) RequestFor(ctx context.Context, to string, cert models.Certificate, actionLabel string) error {
	return d.RequestApproval(ctx, ComposeRequest(to, cert, actionLabel))
}

// ComposeRequest describes a blocked action on cert for the administrator.
func ComposeRequest(to string, cert models.Certificate, actionLabel string) Notification {
	text := strings.Join([]string{
		"Request Type: " + actionLabel,
		"Requested By: User System",
		"",
		"Certificate Details:",
		"---------------------",
		"Name: " + cert.Name,
		"Hospital: " + cert.Hospital,
		"Certificate No: " + cert.CertificateNo,
		"DOI: " + cert.DOI,
		"---------------------",
		"",
		"Please approve this request by clicking the link in this email.",
	}, "\n")
	return Notification{
		To:            to,
		Subject:       fmt.Sprintf("User Request: %s - %s", actionLabel, cert.CertificateNo),
		Text:          text,
		CertificateID: cert.ID,
		CertificateNo: cert.CertificateNo,
	}
}

// ActionURL is the link an administrator clicks to apply action to the certificate.
func (d *Dispatcher) ActionURL(certID uint, action approval.Action, token string) string {
	q := url.Values{}
	q.Set("certId", strconv.FormatUint(uint64(certID), 10))
	q.Set("action", string(action))
	q.Set("token", token)
	return d.baseURL + ApprovalPath + "?" + q.Encode()
}

// SendArtifact mails a rendered certificate as a PDF attachment. The caller is
// responsible for checking the approval gate first.
func (d *Dispatcher) SendArtifact(ctx context.Context, to string, cert models.Certificate, filename string, pdf []byte) error {
	if strings.TrimSpace(to) == "" {
		return ErrMissingRecipient
	}
	err := d.mailer.Send(ctx, Message{
		To:      []string{to},
		Subject: "Your certificate " + cert.CertificateNo,
		Text:    fmt.Sprintf("Dear %s,\n\nPlease find attached your certificate %s.\n", cert.Name, cert.CertificateNo),
		HTML:    emailTemplate(d.brand, "Your Certificate", artifactBody(cert.Name, cert.CertificateNo)),
		Attachments: []Attachment{{
			Filename:    filename,
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
	d.metrics.Notification("artifact", err == nil)
	if err != nil {
		return fmt.Errorf("send certificate: %w", err)
	}
	return nil
}
