package auth

import "time"

// User represents an authenticated account within a tenant.
type User struct {
	ID           string
	TenantID     string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
