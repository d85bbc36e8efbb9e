package users

import "time"

// User represents a tenant member whose access gets evaluated.
type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoleRef is the role summary attached to a user detail view.
type RoleRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// UserWithRoles bundles a user with the roles assigned to them.
type UserWithRoles struct {
	User
	Roles []RoleRef `json:"roles"`
}
