package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for webhook endpoints
// and their delivery records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const endpointColumns = `id, tenant_id, url, secret, active, created_at`

// CreateEndpoint inserts a new endpoint row.
func (r *Repository) CreateEndpoint(ctx context.Context, e Endpoint) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO webhook_endpoints (id, tenant_id, url, secret, active, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		e.ID, e.TenantID, e.URL, e.Secret, e.Active)
	return err
}

// ListEndpoints returns all endpoints for a tenant, newest first.
func (r *Repository) ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// ListActiveEndpoints returns the endpoints an event fans out to.
func (r *Repository) ListActiveEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE tenant_id = $1 AND active = TRUE`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// GetActiveEndpoint fetches one active endpoint scoped to the tenant.
func (r *Repository) GetActiveEndpoint(ctx context.Context, tenantID, id string) (*Endpoint, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1 AND tenant_id = $2 AND active = TRUE`, id, tenantID)
	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// DeleteEndpoint removes an endpoint scoped to the tenant.
func (r *Repository) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasPendingDeliveries reports whether any delivery for the endpoint is
// still in flight.
func (r *Repository) HasPendingDeliveries(ctx context.Context, endpointID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM webhook_deliveries WHERE endpoint_id = $1 AND status = 'PENDING')`, endpointID).Scan(&exists)
	return exists, err
}

// CreateDelivery inserts a delivery record in its initial state.
func (r *Repository) CreateDelivery(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, endpoint_id, event_type, payload, status, attempt_count, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		d.ID, d.TenantID, d.EndpointID, d.EventType, d.Payload, string(d.Status), d.AttemptCount)
	return err
}

// MarkDelivery finalises a delivery attempt.
func (r *Repository) MarkDelivery(ctx context.Context, id string, status DeliveryStatus, attemptAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE webhook_deliveries SET status = $1, attempt_count = attempt_count + 1, last_attempt_at = $2 WHERE id = $3`,
		string(status), attemptAt, id)
	return err
}

// ListDeliveries returns the most recent deliveries for a tenant, optionally
// filtered by status and event type.
func (r *Repository) ListDeliveries(ctx context.Context, tenantID string, status DeliveryStatus, eventType string, limit int) ([]Delivery, error) {
	query := `SELECT id, tenant_id, endpoint_id, event_type, payload, status, attempt_count, last_attempt_at, created_at FROM webhook_deliveries WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if eventType != "" {
		args = append(args, eventType)
		query += fmt.Sprintf(` AND event_type = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var (
			d      Delivery
			status string
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.EndpointID, &d.EventType, &d.Payload, &status, &d.AttemptCount, &d.LastAttemptAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Status = DeliveryStatus(status)
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func scanEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var endpoints []Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var e Endpoint
	if err := row.Scan(&e.ID, &e.TenantID, &e.URL, &e.Secret, &e.Active, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
