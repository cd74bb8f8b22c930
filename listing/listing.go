// Package listing answers paginated certificate queries and merges each
// record's approval state into the result.
package listing

import (
	"certvault/models"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 1000
)

var ErrNotFound = errors.New("certificate not found")

// ErrPageOutOfRange is returned for a page whose row offset does not fit in an int.
var ErrPageOutOfRange = errors.New("page out of range")

// Query filters the certificate list. All disables pagination (export).
type Query struct {
	Page     int
	Limit    int
	Search   string
	Hospital string
	All      bool
}

// Normalize fills in the default page and limit and caps the limit at MaxLimit.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	q.Limit = min(q.Limit, MaxLimit)
	q.Search = strings.TrimSpace(q.Search)
	q.Hospital = strings.TrimSpace(q.Hospital)
	return q
}

type Page struct {
	Data       []models.CertificateView
	Total      int64
	Page       int
	Limit      int
	TotalPages int
	Hospitals  []string
}

type Lister struct {
	db *gorm.DB
}

func NewLister(db *gorm.DB) *Lister {
	return &Lister{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const searchClause = `(LOWER(certificate_no) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\' ` +
	`OR LOWER(hospital) LIKE ? ESCAPE '\' OR LOWER(doi) LIKE ? ESCAPE '\')`

// Validate reports ErrPageOutOfRange when (Page-1)*Limit would overflow.
// q must be normalized.
func (q Query) Validate() error {
	if !q.All && q.Page-1 > math.MaxInt/q.Limit {
		return ErrPageOutOfRange
	}
	return nil
}

func (q Query) filter(tx *gorm.DB) *gorm.DB {
	if q.Search != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q.Search)) + "%"
		tx = tx.Where(searchClause, like, like, like, like)
	}
	if q.Hospital != "" {
		tx = tx.Where("hospital = ?", q.Hospital)
	}
	return tx
}

// List returns one page of certificates (or all of them when q.All is set)
// together with the total match count and the distinct hospitals of the
// whole filtered set.
func (l *Lister) List(ctx context.Context, q Query) (*Page, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	db := l.db.WithContext(ctx)

	var total int64
	if err := q.filter(db.Model(&models.Certificate{})).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}

	var certs []models.Certificate
	tx := q.filter(db.Model(&models.Certificate{})).Order("id desc")
	if !q.All {
		tx = tx.Offset((q.Page - 1) * q.Limit).Limit(q.Limit)
	}
	if err := tx.Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("fetch certificates: %w", err)
	}

	var hospitals []string
	if err := q.filter(db.Model(&models.Certificate{})).
		Where("hospital <> ''").
		Distinct("hospital").
		Order("hospital").
		Pluck("hospital", &hospitals).Error; err != nil {
		return nil, fmt.Errorf("fetch hospitals: %w", err)
	}

	views, err := l.merge(ctx, certs)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Data:       views,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		Hospitals:  hospitals,
	}
	if q.All {
		page.Limit = int(total)
	}
	return page, nil
}

// Get returns a single certificate with its approval state.
func (l *Lister) Get(ctx context.Context, id uint) (*models.CertificateView, error) {
	views, err := l.Views(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Views loads the given certificates in the order requested. Any unknown id
// fails the whole call with ErrNotFound.
func (l *Lister) Views(ctx context.Context, ids []uint) ([]models.CertificateView, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var certs []models.Certificate
	if err := l.db.WithContext(ctx).Where("id IN ?", ids).Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("fetch certificates: %w", err)
	}
	byID := make(map[uint]models.Certificate, len(certs))
	for _, c := range certs {
		byID[c.ID] = c
	}
	ordered := make([]models.Certificate, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		ordered = append(ordered, c)
	}
	return l.merge(ctx, ordered)
}

// merge attaches approval state with a second query keyed by the fetched ids.
// Certificates without an approval row are locked.
func (l *Lister) merge(ctx context.Context, certs []models.Certificate) ([]models.CertificateView, error) {
	views := make([]models.CertificateView, len(certs))
	if len(certs) == 0 {
		return views, nil
	}
	ids := make([]uint, len(certs))
	for i, c := range certs {
		ids[i] = c.ID
	}

	var reqs []models.ApprovalRequest
	if err := l.db.WithContext(ctx).Where("certificate_id IN ?", ids).Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("fetch approval states: %w", err)
	}
	unlocked := make(map[uint]bool, len(reqs))
	for _, r := range reqs {
		unlocked[r.CertificateID] = r.Unlocked()
	}
	for i, c := range certs {
		views[i] = models.CertificateView{Certificate: c, IsApproved: unlocked[c.ID]}
	}
	return views, nil
}
