package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/access"
)

// RepositoryPort mendefinisikan kontrak persistence yang dibutuhkan service.
type RepositoryPort interface {
	Insert(ctx context.Context, rec Record) error
	TimelineWindow(ctx context.Context, tenantID string, f Filters, limit, offset int) ([]Record, error)
}

// Service mengoordinasikan penulisan dan pembacaan audit trail.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService membuat service audit baru.
func NewService(repo RepositoryPort) *Service {
	return &Service{
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Insert menyimpan satu record evaluasi dari antrian.
func (s *Service) Insert(ctx context.Context, rec access.AuditRecord) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	return s.repo.Insert(ctx, Record{
		ID:        uuid.NewString(),
		TenantID:  rec.TenantID,
		UserID:    rec.UserID,
		Resource:  rec.Resource,
		Action:    rec.Action,
		Allowed:   rec.Allowed,
		Source:    rec.Source,
		Context:   rec.Context,
		CreatedAt: s.now(),
	})
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, tenantID string, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, tenantID, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Record{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
