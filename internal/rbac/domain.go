package rbac

import "time"

// Role represents a tenant-scoped permission grouping.
// Code is unique within the tenant.
type Role struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	BuiltIn   bool
	CreatedAt time.Time
}

// Permission represents an atomic capability. Code follows the
// "resource.action" convention and is globally unique.
type Permission struct {
	ID          string
	Code        string
	Description string
}

// RoleWithPermissions bundles a role and its attached permissions.
type RoleWithPermissions struct {
	Role
	Permissions []Permission
}
