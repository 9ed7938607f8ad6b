// Package users manages technician and admin accounts.
package users

import (
	"time"

	"github.com/cooltrack/cooltrack/internal/shared"
)

// User represents a user account.
type User struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	Role         shared.Role `json:"role"`
	PasswordHash string      `json:"-"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreateUserInput carries the fields for account creation.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     shared.Role
}

// UserPatch updates account fields. A nil field is left unchanged.
type UserPatch struct {
	Name     *string
	Role     *shared.Role
	Password *string
	IsActive *bool
}
