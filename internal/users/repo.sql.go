package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns one window of the tenant's users ordered by creation.
func (r *Repository) ListUsers(ctx context.Context, tenantID string, limit, offset int) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, email, name, is_active, created_at FROM users WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.TenantID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches one user scoped to the tenant.
func (r *Repository) GetUser(ctx context.Context, tenantID, id string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, email, name, is_active, created_at FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID).
		Scan(&user.ID, &user.TenantID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserRoles returns the roles assigned to a user within the tenant.
func (r *Repository) UserRoles(ctx context.Context, tenantID, userID string) ([]RoleRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.code, r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1 AND r.tenant_id = $2 ORDER BY r.code`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleRef
	for rows.Next() {
		var role RoleRef
		if err := rows.Scan(&role.ID, &role.Code, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
