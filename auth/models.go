package auth

import (
	"strings"
	"time"
)

// Role is the authority a user holds inside the union. Roles are ordered:
// member < steward < admin.
type Role string

const (
	RoleMember  Role = "member"
	RoleSteward Role = "steward"
	RoleAdmin   Role = "admin"
)

// Rank returns the numeric position of the role in the hierarchy. Unknown
// roles rank below every known role.
func (r Role) Rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleSteward:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r carries at least the authority of min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank()
}

// ParseRole normalises a role string; ok is false for unknown values.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, isValidRole(role)
}

// User is the domain representation of an authenticated union user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	LocalID      *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
