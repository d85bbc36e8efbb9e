package policy

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for policies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const policyColumns = `id, tenant_id, name, resource, action, effect, condition, active, created_at`

// FindActive returns active policies matching (tenant, resource, action).
// Ordering is insignificant; the engine evaluates every match.
func (r *Repository) FindActive(ctx context.Context, tenantID, resource, action string) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+policyColumns+` FROM policies WHERE tenant_id = $1 AND resource = $2 AND action = $3 AND active = TRUE`, tenantID, resource, action)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// List returns all policies for a tenant, optionally filtered by active state.
func (r *Repository) List(ctx context.Context, tenantID string, active *bool) ([]Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE tenant_id = $1 ORDER BY created_at DESC`
	args := []any{tenantID}
	if active != nil {
		query = `SELECT ` + policyColumns + ` FROM policies WHERE tenant_id = $1 AND active = $2 ORDER BY created_at DESC`
		args = append(args, *active)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// Get fetches one policy scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create inserts a new policy row.
func (r *Repository) Create(ctx context.Context, p Policy) error {
	condJSON, err := json.Marshal(p.Condition)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO policies (id, tenant_id, name, resource, action, effect, condition, active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		p.ID, p.TenantID, p.Name, p.Resource, p.Action, string(p.Effect), condJSON, p.Active)
	return err
}

// Update applies partial changes to a policy. Nil fields stay untouched.
func (r *Repository) Update(ctx context.Context, tenantID, id string, name *string, condition Condition, active *bool) (*Policy, error) {
	existing, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		existing.Name = *name
	}
	if condition != nil {
		existing.Condition = condition
	}
	if active != nil {
		existing.Active = *active
	}
	condJSON, err := json.Marshal(existing.Condition)
	if err != nil {
		return nil, err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE policies SET name = $1, condition = $2, active = $3 WHERE id = $4 AND tenant_id = $5`,
		existing.Name, condJSON, existing.Active, id, tenantID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return existing, nil
}

func scanPolicies(rows pgx.Rows) ([]Policy, error) {
	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return policies, nil
}

func scanPolicy(row pgx.Row) (*Policy, error) {
	var (
		p       Policy
		effect  string
		condRaw []byte
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Resource, &p.Action, &effect, &condRaw, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Effect = Effect(effect)
	p.Condition = DecodeCondition(condRaw)
	return &p, nil
}
