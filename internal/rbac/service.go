package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for roles and permissions.
type RepositoryPort interface {
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	GetRole(ctx context.Context, tenantID, id string) (*Role, error)
	CreateRole(ctx context.Context, role Role) error
	UpdateRole(ctx context.Context, tenantID, id, code, name string) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, p Permission) error
	FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
	UserExists(ctx context.Context, userID, tenantID string) (bool, error)
	UserPermissionCodes(ctx context.Context, userID, tenantID string) ([]string, error)
}

// EventEmitter publishes tenant events toward the webhook pipeline.
type EventEmitter interface {
	Emit(ctx context.Context, tenantID, eventType string, payload any)
}

// Service orchestrates role, permission and assignment operations.
type Service struct {
	repo   RepositoryPort
	events EventEmitter
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, events EventEmitter) *Service {
	return &Service{repo: repo, events: events}
}

// ResolvePermissionCodes returns the set of permission codes granted to the
// user through role assignments within the tenant. A user with zero role
// assignments gets an empty set; a user absent from the tenant gets
// shared.ErrNotFound.
func (s *Service) ResolvePermissionCodes(ctx context.Context, userID, tenantID string) (map[string]struct{}, error) {
	exists, err := s.repo.UserExists(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("rbac: user %s: %w", userID, shared.ErrNotFound)
	}
	codes, err := s.repo.UserPermissionCodes(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set, nil
}

// ListRoles returns the tenant's roles.
func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole fetches a role with its permissions.
func (s *Service) GetRole(ctx context.Context, tenantID, id string) (*RoleWithPermissions, error) {
	role, err := s.repo.GetRole(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.repo.RolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &RoleWithPermissions{Role: *role, Permissions: perms}, nil
}

// CreateRole inserts a new tenant-scoped role. In preview mode the role is
// validated but not stored.
func (s *Service) CreateRole(ctx context.Context, tenantID, code, name string) (*Role, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("rbac: role code required")
	}

	role := Role{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Code:     code,
		Name:     strings.TrimSpace(name),
	}

	if shared.PreviewModeFromContext(ctx) {
		role.ID = "preview-" + role.ID
		return &role, nil
	}

	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	s.emit(ctx, tenantID, "role.created", role)
	return &role, nil
}

// UpdateRole changes code and/or name of an existing role.
func (s *Service) UpdateRole(ctx context.Context, tenantID, id string, code, name *string) (*Role, error) {
	existing, err := s.repo.GetRole(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if code != nil {
		existing.Code = strings.TrimSpace(*code)
	}
	if name != nil {
		existing.Name = strings.TrimSpace(*name)
	}
	if existing.Code == "" {
		return nil, fmt.Errorf("rbac: role code required")
	}

	if shared.PreviewModeFromContext(ctx) {
		return existing, nil
	}

	if err := s.repo.UpdateRole(ctx, tenantID, id, existing.Code, existing.Name); err != nil {
		return nil, err
	}
	s.emit(ctx, tenantID, "role.updated", *existing)
	return existing, nil
}

// AssignPermissions replaces a role's permission set with the given codes.
// All codes must exist; the old set is discarded, not merged.
func (s *Service) AssignPermissions(ctx context.Context, tenantID, roleID string, codes []string) (*RoleWithPermissions, error) {
	role, err := s.repo.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}

	perms, err := s.repo.FindPermissionsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		found[p.Code] = struct{}{}
	}
	for _, code := range codes {
		if _, ok := found[code]; !ok {
			return nil, fmt.Errorf("rbac: unknown permission code %q", code)
		}
	}

	if shared.PreviewModeFromContext(ctx) {
		return &RoleWithPermissions{Role: *role, Permissions: perms}, nil
	}

	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
		return nil, err
	}
	s.emit(ctx, tenantID, "role.permissions_assigned", map[string]any{"roleId": roleID, "permissionCodes": codes})
	return &RoleWithPermissions{Role: *role, Permissions: perms}, nil
}

// AssignRoleToUser links a user within the tenant to a role.
func (s *Service) AssignRoleToUser(ctx context.Context, tenantID, userID, roleID string) error {
	exists, err := s.repo.UserExists(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("rbac: user %s: %w", userID, shared.ErrNotFound)
	}
	if _, err := s.repo.GetRole(ctx, tenantID, roleID); err != nil {
		return err
	}
	if shared.PreviewModeFromContext(ctx) {
		return nil
	}
	return s.repo.AssignRoleToUser(ctx, userID, roleID)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission inserts a new permission with a "resource.action" code.
func (s *Service) CreatePermission(ctx context.Context, code, description string) (*Permission, error) {
	code = strings.TrimSpace(code)
	if parts := strings.Split(code, "."); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("rbac: permission code must be of the form resource.action")
	}
	p := Permission{ID: uuid.NewString(), Code: code, Description: strings.TrimSpace(description)}

	if shared.PreviewModeFromContext(ctx) {
		p.ID = "preview-" + p.ID
		return &p, nil
	}

	if err := s.repo.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) emit(ctx context.Context, tenantID, eventType string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, tenantID, eventType, payload)
}
