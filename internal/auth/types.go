package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a glove wearer. Sees only their own devices, bindings and
	// learning records.
	RoleUser Role = "user"

	// RoleAdmin has full system control: device registry, all users' bindings,
	// retention, integration endpoints.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid user roles.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidUserRole returns true if the role is a valid role for a user account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// UserStatus represents the lifecycle state of a user account.
type UserStatus string

const (
	// StatusActive is a normal account that can log in and bind devices.
	StatusActive UserStatus = "active"

	// StatusInactive is a disabled account. Login is refused; existing
	// bindings and learning records are preserved.
	StatusInactive UserStatus = "inactive"
)

// User represents an authenticated account (glove wearer or administrator).
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive returns true if the account is allowed to authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
