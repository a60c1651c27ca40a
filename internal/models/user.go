package models

import (
	"fmt"
	"time"
)

// Role is the coarse access class of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// ParseRole accepts exactly "admin" or "employee". An empty string yields
// RoleEmployee, matching registration defaults.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleEmployee:
		return RoleEmployee, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

type User struct {
	ID                    string     `db:"id" json:"id"`
	Email                 string     `db:"email" json:"email"`
	PasswordHash          string     `db:"password_hash" json:"-"`
	Role                  Role       `db:"role" json:"role"`
	FailedLoginAttempts   int        `db:"failed_login_attempts" json:"-"`
	AccountLockedUntil    *time.Time `db:"account_locked_until" json:"-"`
	LastLogin             *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	RefreshToken          *string    `db:"refresh_token" json:"-"`
	RefreshTokenExpiresAt *time.Time `db:"refresh_token_expires_at" json:"-"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

func (u *User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}
