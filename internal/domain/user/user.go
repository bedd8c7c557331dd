package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Repository.Create when the email is taken.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateUsername is returned by Repository.Create when the username is taken.
	ErrDuplicateUsername = errors.New("duplicate username")
)

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the authenticated caller carried by access tokens.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

// IsAdmin reports whether the identity has the ADMIN role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// TokenIssuer issues access tokens for an identity.
type TokenIssuer interface {
	IssueToken(id Identity) (string, error)
}
