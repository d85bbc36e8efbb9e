package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository menyediakan akses PostgreSQL untuk audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit baru.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert menulis satu record audit.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	var ctxJSON []byte
	if rec.Context != nil {
		var err error
		ctxJSON, err = json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal audit context: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs (id, tenant_id, user_id, resource, action, allowed, source, context, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.TenantID, rec.UserID, rec.Resource, rec.Action, rec.Allowed, rec.Source, ctxJSON, rec.CreatedAt)
	return err
}

// TimelineWindow mengambil satu jendela record audit terbaru, terurut
// menurun berdasarkan waktu. Limit dilebihkan satu oleh pemanggil untuk
// mendeteksi halaman berikutnya.
func (r *Repository) TimelineWindow(ctx context.Context, tenantID string, f Filters, limit, offset int) ([]Record, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Allowed != nil {
		add("allowed = $%d", *f.Allowed)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, tenant_id, user_id, resource, action, allowed, source, context, created_at FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		ctxJSON []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.Resource, &rec.Action, &rec.Allowed, &rec.Source, &ctxJSON, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &rec.Context); err != nil {
			return Record{}, fmt.Errorf("decode audit context: %w", err)
		}
	}
	return rec, nil
}
