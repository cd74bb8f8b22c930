package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SMTPMailer sends with PLAIN auth over STARTTLS, e.g. Gmail on port 587.
type SMTPMailer struct {
	Host     string
	Port     string
	Password string
	From     Sender
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := buildMIME(s.From, msg)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.From.Address, s.Password, s.Host)

	// Debug Logs
	log.Printf("--- Sending Email ---\nTo: %v\nSubject: %s\nFrom: %s", msg.To, msg.Subject, s.From.Address)

	if err := smtp.SendMail(s.Host+":"+s.Port, auth, s.From.Address, msg.To, body); err != nil {
		log.Println("Error sending email:", err)
		return fmt.Errorf("smtp: %w", err)
	}
	log.Println("--- Email Sent Successfully ---")
	return nil
}

// buildMIME renders msg as multipart/mixed with a multipart/alternative body.
func buildMIME(from Sender, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "From: %s\r\n", from.header())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ","))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mixed.Boundary())

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	parts := []struct{ ctype, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type": {p.ctype + "; charset=\"UTF-8\""},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	w, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + altWriter.Boundary()},
	})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		w, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {a.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, w)
		if _, err := enc.Write(a.Data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
