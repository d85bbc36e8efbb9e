package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type mockRepo struct {
	roles       map[string]*Role
	permissions map[string]*Permission // keyed by code
	rolePerms   map[string][]string    // roleID -> permission IDs
	userRoles   map[string][]string    // userID -> role IDs
	users       map[string]string      // userID -> tenantID

	codesErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		roles:       make(map[string]*Role),
		permissions: make(map[string]*Permission),
		rolePerms:   make(map[string][]string),
		userRoles:   make(map[string][]string),
		users:       make(map[string]string),
	}
}

func (m *mockRepo) ListRoles(_ context.Context, tenantID string) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.TenantID == tenantID {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *mockRepo) GetRole(_ context.Context, tenantID, id string) (*Role, error) {
	role, ok := m.roles[id]
	if !ok || role.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *role
	return &copied, nil
}

func (m *mockRepo) CreateRole(_ context.Context, role Role) error {
	for _, existing := range m.roles {
		if existing.TenantID == role.TenantID && existing.Code == role.Code {
			return shared.ErrDuplicate
		}
	}
	m.roles[role.ID] = &role
	return nil
}

func (m *mockRepo) UpdateRole(_ context.Context, tenantID, id, code, name string) error {
	role, ok := m.roles[id]
	if !ok || role.TenantID != tenantID {
		return shared.ErrNotFound
	}
	role.Code = code
	role.Name = name
	return nil
}

func (m *mockRepo) ListPermissions(_ context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) CreatePermission(_ context.Context, p Permission) error {
	if _, ok := m.permissions[p.Code]; ok {
		return shared.ErrDuplicate
	}
	m.permissions[p.Code] = &p
	return nil
}

func (m *mockRepo) FindPermissionsByCodes(_ context.Context, codes []string) ([]Permission, error) {
	var out []Permission
	for _, code := range codes {
		if p, ok := m.permissions[code]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) RolePermissions(_ context.Context, roleID string) ([]Permission, error) {
	var out []Permission
	for _, pid := range m.rolePerms[roleID] {
		for _, p := range m.permissions {
			if p.ID == pid {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

func (m *mockRepo) ReplaceRolePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	m.rolePerms[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (m *mockRepo) AssignRoleToUser(_ context.Context, userID, roleID string) error {
	for _, existing := range m.userRoles[userID] {
		if existing == roleID {
			return nil
		}
	}
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
	return nil
}

func (m *mockRepo) UserExists(_ context.Context, userID, tenantID string) (bool, error) {
	tenant, ok := m.users[userID]
	return ok && tenant == tenantID, nil
}

func (m *mockRepo) UserPermissionCodes(_ context.Context, userID, tenantID string) ([]string, error) {
	if m.codesErr != nil {
		return nil, m.codesErr
	}
	seen := make(map[string]struct{})
	var codes []string
	for _, roleID := range m.userRoles[userID] {
		role, ok := m.roles[roleID]
		if !ok || role.TenantID != tenantID {
			continue
		}
		for _, pid := range m.rolePerms[roleID] {
			for _, p := range m.permissions {
				if p.ID != pid {
					continue
				}
				if _, dup := seen[p.Code]; !dup {
					seen[p.Code] = struct{}{}
					codes = append(codes, p.Code)
				}
			}
		}
	}
	return codes, nil
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, string, any) {}

func seedRoleWithPermissions(t *testing.T, repo *mockRepo, svc *Service, tenantID, userID string, codes ...string) *Role {
	t.Helper()
	repo.users[userID] = tenantID
	role, err := svc.CreateRole(context.Background(), tenantID, "EDITOR", "Editor")
	require.NoError(t, err)
	for _, code := range codes {
		_, err := svc.CreatePermission(context.Background(), code, "")
		require.NoError(t, err)
	}
	if len(codes) > 0 {
		_, err = svc.AssignPermissions(context.Background(), tenantID, role.ID, codes)
		require.NoError(t, err)
	}
	require.NoError(t, svc.AssignRoleToUser(context.Background(), tenantID, userID, role.ID))
	return role
}

func TestResolvePermissionCodes(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})
	seedRoleWithPermissions(t, repo, svc, "t1", "u1", "documents.write", "documents.read")

	codes, err := svc.ResolvePermissionCodes(context.Background(), "u1", "t1")
	require.NoError(t, err)
	assert.Contains(t, codes, "documents.write")
	assert.Contains(t, codes, "documents.read")
	assert.Len(t, codes, 2)
}

func TestResolvePermissionCodesZeroRoles(t *testing.T) {
	repo := newMockRepo()
	repo.users["u1"] = "t1"
	svc := NewService(repo, nopEmitter{})

	codes, err := svc.ResolvePermissionCodes(context.Background(), "u1", "t1")
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestResolvePermissionCodesUnknownUser(t *testing.T) {
	svc := NewService(newMockRepo(), nopEmitter{})

	_, err := svc.ResolvePermissionCodes(context.Background(), "ghost", "t1")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestResolvePermissionCodesScopedToTenant(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})
	seedRoleWithPermissions(t, repo, svc, "t1", "u1", "documents.write")

	_, err := svc.ResolvePermissionCodes(context.Background(), "u1", "t2")
	assert.True(t, errors.Is(err, shared.ErrNotFound), "user does not belong to t2")
}

func TestAssignPermissionsReplacesWholesale(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})
	role := seedRoleWithPermissions(t, repo, svc, "t1", "u1", "documents.write")

	_, err := svc.CreatePermission(context.Background(), "documents.delete", "")
	require.NoError(t, err)

	updated, err := svc.AssignPermissions(context.Background(), "t1", role.ID, []string{"documents.delete"})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
	assert.Equal(t, "documents.delete", updated.Permissions[0].Code)

	codes, err := svc.ResolvePermissionCodes(context.Background(), "u1", "t1")
	require.NoError(t, err)
	assert.NotContains(t, codes, "documents.write", "old associations are deleted, not merged")
	assert.Contains(t, codes, "documents.delete")
}

func TestAssignPermissionsRejectsUnknownCodes(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})
	role := seedRoleWithPermissions(t, repo, svc, "t1", "u1", "documents.write")

	_, err := svc.AssignPermissions(context.Background(), "t1", role.ID, []string{"documents.write", "nope.nothing"})
	assert.Error(t, err)
}

func TestCreateRoleDuplicateCode(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})

	_, err := svc.CreateRole(context.Background(), "t1", "EDITOR", "Editor")
	require.NoError(t, err)
	_, err = svc.CreateRole(context.Background(), "t1", "EDITOR", "Editor again")
	assert.True(t, errors.Is(err, shared.ErrDuplicate))

	// Same code in a different tenant is fine.
	_, err = svc.CreateRole(context.Background(), "t2", "EDITOR", "Editor")
	assert.NoError(t, err)
}

func TestCreatePermissionValidatesCodeShape(t *testing.T) {
	svc := NewService(newMockRepo(), nopEmitter{})

	for _, code := range []string{"", "documents", "documents.", ".write", "a.b.c"} {
		_, err := svc.CreatePermission(context.Background(), code, "")
		assert.Error(t, err, "code %q must be rejected", code)
	}

	p, err := svc.CreatePermission(context.Background(), "documents.write", "write docs")
	require.NoError(t, err)
	assert.Equal(t, "documents.write", p.Code)
}

func TestPreviewModeSkipsRoleMutations(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nopEmitter{})

	ctx := shared.ContextWithPreviewMode(context.Background(), true)
	role, err := svc.CreateRole(ctx, "t1", "VIEWER", "Viewer")
	require.NoError(t, err)
	assert.Contains(t, role.ID, "preview-")
	assert.Empty(t, repo.roles)
}
