package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Message is a transport-neutral email.
type Message struct {
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer delivers a message. Delivery is at-most-once from the caller's view:
// an error means the message may or may not have been sent.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From address used by every transport.
type Sender struct {
	Address string
	Name    string
}

func (s Sender) header() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// LogMailer prints messages instead of sending them. Used for local development.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("--- Email (not sent) ---\nTo: %s\nSubject: %s\nAttachments: %d\n%s",
		strings.Join(msg.To, ","), msg.Subject, len(msg.Attachments), msg.Text)
	return nil
}
