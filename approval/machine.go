// Package approval implements the per-certificate gate that locks downloading
// and emailing a certificate until an administrator approves it.
//
// The gate has two states, LOCKED and UNLOCKED, and three transitions:
// EnsurePending creates a LOCKED row if none exists, Approve forces UNLOCKED,
// Reject forces LOCKED. A certificate without a row is LOCKED. Uniqueness of the
// row per certificate is left to the store's unique index, so concurrent calls
// resolve as last-writer-wins.
package approval

import (
	"certvault/metrics"
	"certvault/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Action is what an administrator asked for from an approval link.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

var (
	ErrMissingCertificate  = errors.New("missing certificate id")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrUnknownAction       = errors.New("unknown approval action")
)

// ParseAction accepts "approve" or "reject", case-insensitively.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) target() models.ApprovalState {
	if a == ActionApprove {
		return models.StateUnlocked
	}
	return models.StateLocked
}

type Machine struct {
	db      *gorm.DB
	signer  *Signer
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewMachine(db *gorm.DB, signer *Signer, m *metrics.Metrics) *Machine {
	return &Machine{db: db, signer: signer, metrics: m, now: time.Now}
}

// EnsurePending makes sure a row exists for the certificate. A new row starts
// LOCKED; an existing row keeps its state and only refreshes the certificate number.
func (m *Machine) EnsurePending(ctx context.Context, certID uint, certNo string) error {
	if certID == 0 {
		return ErrMissingCertificate
	}
	req := models.ApprovalRequest{
		CertificateID: certID,
		CertificateNo: certNo,
		State:         models.StateLocked,
	}
	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certificate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"certificate_no", "updated_at"}),
		}).
		Create(&req).Error
	if err != nil {
		return fmt.Errorf("ensure pending approval for certificate %d: %w", certID, err)
	}
	m.metrics.Transition("ensure_pending")
	return nil
}

// Approve unlocks the certificate's protected actions. Repeating it is harmless.
func (m *Machine) Approve(ctx context.Context, certID uint) error {
	return m.Apply(ctx, certID, ActionApprove)
}

// Reject locks the certificate's protected actions again. Repeating it is harmless.
func (m *Machine) Reject(ctx context.Context, certID uint) error {
	return m.Apply(ctx, certID, ActionReject)
}

func (m *Machine) Apply(ctx context.Context, certID uint, action Action) error {
	if certID == 0 {
		return ErrMissingCertificate
	}
	if action != ActionApprove && action != ActionReject {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err := transition(m.db.WithContext(ctx), certID, action.target()); err != nil {
		return err
	}
	m.metrics.Transition(string(action))
	return nil
}

// transition upserts the row with the given state. The certificate must exist;
// its number is copied onto the row for display.
func transition(tx *gorm.DB, certID uint, state models.ApprovalState) error {
	var cert models.Certificate
	if err := tx.Select("id", "certificate_no").First(&cert, certID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrCertificateNotFound, certID)
		}
		return fmt.Errorf("load certificate %d: %w", certID, err)
	}
	req := models.ApprovalRequest{
		CertificateID: certID,
		CertificateNo: cert.CertificateNo,
		State:         state,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "certificate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "certificate_no", "updated_at"}),
	}).Create(&req).Error
	if err != nil {
		return fmt.Errorf("set approval state for certificate %d: %w", certID, err)
	}
	return nil
}

// StateOf returns the certificate's gate state, LOCKED when no row exists.
func (m *Machine) StateOf(ctx context.Context, certID uint) (models.ApprovalState, error) {
	var req models.ApprovalRequest
	err := m.db.WithContext(ctx).Where("certificate_id = ?", certID).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StateLocked, nil
	}
	if err != nil {
		return "", fmt.Errorf("load approval for certificate %d: %w", certID, err)
	}
	return req.State, nil
}

// Unlocked is the guard for protected actions.
func (m *Machine) Unlocked(ctx context.Context, certID uint) (bool, error) {
	state, err := m.StateOf(ctx, certID)
	if err != nil {
		return false, err
	}
	return state == models.StateUnlocked, nil
}
