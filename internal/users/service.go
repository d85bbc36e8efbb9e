package users

import "context"

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, tenantID string, limit, offset int) ([]User, error)
	GetUser(ctx context.Context, tenantID, id string) (*User, error)
	UserRoles(ctx context.Context, tenantID, userID string) ([]RoleRef, error)
}

// RoleAssigner grants a role to a user. Role bookkeeping stays with the
// rbac service; this package only exposes the user-centric surface.
type RoleAssigner interface {
	AssignRoleToUser(ctx context.Context, tenantID, userID, roleID string) error
}

// ListResult is one page of users with simple paging metadata.
type ListResult struct {
	Users    []User `json:"users"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	HasNext  bool   `json:"hasNext"`
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	roles RoleAssigner
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, roles RoleAssigner) *Service {
	return &Service{repo: repo, roles: roles}
}

// List returns one page of the tenant's users.
func (s *Service) List(ctx context.Context, tenantID string, page, pageSize int) (ListResult, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	users, err := s.repo.ListUsers(ctx, tenantID, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}
	hasNext := len(users) > pageSize
	if hasNext {
		users = users[:pageSize]
	}
	if users == nil {
		users = []User{}
	}
	return ListResult{Users: users, Page: page, PageSize: pageSize, HasNext: hasNext}, nil
}

// Get returns a user together with their assigned roles.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*UserWithRoles, error) {
	user, err := s.repo.GetUser(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.UserRoles(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []RoleRef{}
	}
	return &UserWithRoles{User: *user, Roles: roles}, nil
}

// AssignRole grants a role to the user.
func (s *Service) AssignRole(ctx context.Context, tenantID, userID, roleID string) error {
	return s.roles.AssignRoleToUser(ctx, tenantID, userID, roleID)
}
