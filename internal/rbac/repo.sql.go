package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for roles and permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles for a tenant ordered by code.
func (r *Repository) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, code, name, built_in, created_at FROM roles WHERE tenant_id = $1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Code, &role.Name, &role.BuiltIn, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches one role scoped to the tenant.
func (r *Repository) GetRole(ctx context.Context, tenantID, id string) (*Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, built_in, created_at FROM roles WHERE id = $1 AND tenant_id = $2`, id, tenantID).
		Scan(&role.ID, &role.TenantID, &role.Code, &role.Name, &role.BuiltIn, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// CreateRole inserts a new role. A duplicate (tenant, code) pair maps to
// shared.ErrDuplicate.
func (r *Repository) CreateRole(ctx context.Context, role Role) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO roles (id, tenant_id, code, name, built_in, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		role.ID, role.TenantID, role.Code, role.Name, role.BuiltIn)
	return mapUnique(err)
}

// UpdateRole updates code and name of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, tenantID, id, code, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET code = $1, name = $2 WHERE id = $3 AND tenant_id = $4`, code, name, id, tenantID)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by code.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, description FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// CreatePermission inserts a permission. Duplicate codes map to shared.ErrDuplicate.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO permissions (id, code, description) VALUES ($1, $2, $3)`, p.ID, p.Code, p.Description)
	return mapUnique(err)
}

// FindPermissionsByCodes returns the permissions matching the given codes.
func (r *Repository) FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, description FROM permissions WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// RolePermissions returns the permissions attached to a role.
func (r *Repository) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.description FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = $1 ORDER BY p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ReplaceRolePermissions overwrites a role's permission set wholesale:
// existing associations are deleted, then the new set is inserted.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRoleToUser links a user to a role.
func (r *Repository) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// UserExists reports whether the user belongs to the tenant.
func (r *Repository) UserExists(ctx context.Context, userID, tenantID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2)`, userID, tenantID).Scan(&exists)
	return exists, err
}

// UserPermissionCodes returns the deduplicated permission codes granted to a
// user through role assignments, scoped to the tenant.
func (r *Repository) UserPermissionCodes(ctx context.Context, userID, tenantID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id AND ro.tenant_id = $2
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.ErrDuplicate
	}
	return err
}
