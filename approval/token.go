package approval

import (
	"certvault/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTokenInvalid = errors.New("approval link is invalid")
	ErrTokenExpired = errors.New("approval link has expired")
	ErrTokenUsed    = errors.New("approval link was already used")
)

// Signer signs and verifies approval link tokens with HMAC-SHA256.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

type linkClaims struct {
	CertificateID uint   `json:"cid"`
	Action        Action `json:"act"`
	jwt.RegisteredClaims
}

func (s *Signer) sign(tokenID string, certID uint, action Action, issued, expires time.Time) (string, error) {
	claims := linkClaims{
		CertificateID: certID,
		Action:        action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) parse(raw string, now time.Time) (*linkClaims, error) {
	claims := &linkClaims{}
	// expiry is checked below against the caller's clock, not jwt.TimeFunc
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: no token id", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Links holds the signed tokens for one approval email.
type Links struct {
	TokenID   string
	Approve   string
	Reject    string
	ExpiresAt time.Time
}

// IssueLinks stores a fresh single-use token for the certificate and returns
// the approve and reject tokens that share it.
func (m *Machine) IssueLinks(ctx context.Context, certID uint) (*Links, error) {
	if certID == 0 {
		return nil, ErrMissingCertificate
	}
	now := m.now()
	row := models.ApprovalToken{
		TokenID:       uuid.NewString(),
		CertificateID: certID,
		ExpiresAt:     now.Add(m.signer.ttl),
	}

	approve, err := m.signer.sign(row.TokenID, certID, ActionApprove, now, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign approve link: %w", err)
	}
	reject, err := m.signer.sign(row.TokenID, certID, ActionReject, now, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign reject link: %w", err)
	}

	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("store approval token: %w", err)
	}
	return &Links{TokenID: row.TokenID, Approve: approve, Reject: reject, ExpiresAt: row.ExpiresAt}, nil
}

// Redeem verifies a link token against the certificate and action it was
// clicked for, consumes it, and applies the transition in one transaction.
func (m *Machine) Redeem(ctx context.Context, raw string, certID uint, action Action) error {
	if certID == 0 {
		return ErrMissingCertificate
	}
	now := m.now()
	claims, err := m.signer.parse(raw, now)
	if err != nil {
		return err
	}
	if claims.CertificateID != certID || claims.Action != action {
		return fmt.Errorf("%w: link does not match request", ErrTokenInvalid)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ApprovalToken{}).
			Where("token_id = ? AND certificate_id = ? AND consumed_at IS NULL", claims.ID, certID).
			Update("consumed_at", now)
		if res.Error != nil {
			return fmt.Errorf("consume approval token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTokenUsed
		}
		return transition(tx, certID, action.target())
	})
	if err != nil {
		return err
	}
	m.metrics.Transition(string(action))
	return nil
}

// PruneTokens deletes tokens that expired or were consumed before cutoff.
func (m *Machine) PruneTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at < ?", cutoff, cutoff).
		Delete(&models.ApprovalToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune approval tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
