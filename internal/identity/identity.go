// Package identity defines the external collaborator contracts of the session
// core (identity provider and user/role store) together with the concrete
// implementations a Solvio deployment runs against.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/solvio/solvio-core/internal/rbac"
)

var (
	// ErrNoSession is returned when no recoverable provider session exists
	ErrNoSession = errors.New("no active provider session")

	// ErrCredentialNotFound is returned when no credential matches the email
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrProfileNotFound is returned when no profile exists for a principal id
	ErrProfileNotFound = errors.New("profile not found")
)

// Credentials carries a primary email/password pair for local sign-in
type Credentials struct {
	Email    string
	Password string
}

// Profile is the durable user record held by the user store
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        rbac.Role `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Provider is the external identity provider contract. It verifies
// credentials and owns the provider-side session; it knows nothing about
// roles or permissions.
type Provider interface {
	// Authenticate verifies credentials and returns the principal id
	Authenticate(ctx context.Context, creds Credentials) (string, error)

	// AuthenticateExternal verifies a federated token and returns the
	// principal id it asserts
	AuthenticateExternal(ctx context.Context, token string) (string, error)

	// CurrentSessionPrincipalID returns the principal id of a recoverable
	// provider session, or ErrNoSession when there is none
	CurrentSessionPrincipalID(ctx context.Context) (string, error)

	// InvalidateSession tears down the provider-side session
	InvalidateSession(ctx context.Context) error
}

// UserStore is the external user/role source of truth contract
type UserStore interface {
	// GetRole returns the authoritative role for a principal
	GetRole(ctx context.Context, principalID string) (rbac.Role, error)

	// GetProfile returns the durable profile for a principal
	GetProfile(ctx context.Context, principalID string) (*Profile, error)

	// SetRole updates the stored role for a principal
	SetRole(ctx context.Context, principalID string, role rbac.Role) error

	// CreateProfile stores a new profile
	CreateProfile(ctx context.Context, profile *Profile) error

	// ElevatedExists reports whether an elevated account already exists.
	// Consulted by the one-time bootstrap operation.
	ElevatedExists(ctx context.Context) (bool, error)
}

// Credential is a stored secret record for local authentication
type Credential struct {
	PrincipalID  string
	Email        string
	PasswordHash string
}

// CredentialStore persists local sign-in credentials
type CredentialStore interface {
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)
	CreateCredential(ctx context.Context, cred *Credential) error
}
