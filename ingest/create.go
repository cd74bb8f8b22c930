package ingest

import (
	"certvault/models"
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// Create stores a single certificate. A taken certificate number returns
// ErrDuplicate; field validation is the caller's job.
func (e *Engine) Create(ctx context.Context, cert *models.Certificate) error {
	cert.CertificateNo = strings.TrimSpace(cert.CertificateNo)
	cert.Name = strings.TrimSpace(cert.Name)
	cert.Hospital = strings.TrimSpace(cert.Hospital)
	cert.DOI = strings.TrimSpace(cert.DOI)

	res := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certificate_no"}},
			DoNothing: true,
		}).
		Create(cert)
	if res.Error != nil {
		return fmt.Errorf("create certificate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}
