package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/rbac"
)

// Schema is the DDL for the user store tables
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT 'standard',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role);

CREATE TABLE IF NOT EXISTS credentials (
	principal_id  TEXT PRIMARY KEY REFERENCES profiles (id),
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);
`

// PostgresStore implements UserStore and CredentialStore on PostgreSQL
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a Postgres-backed user store
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		db:     db,
		logger: logger.With(zap.String("component", "user-store")),
	}
}

// GetRole returns the authoritative role for a principal
func (s *PostgresStore) GetRole(ctx context.Context, principalID string) (rbac.Role, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, principalID).Scan(&role)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrProfileNotFound
		}
		return "", fmt.Errorf("query role: %w", err)
	}
	return rbac.Role(role), nil
}

// GetProfile returns the durable profile for a principal
func (s *PostgresStore) GetProfile(ctx context.Context, principalID string) (*Profile, error) {
	var profile Profile
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, display_name, role, is_active, created_at, updated_at
		FROM profiles WHERE id = $1
	`, principalID).Scan(&profile.ID, &profile.Email, &profile.DisplayName, &role,
		&profile.IsActive, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	profile.Role = rbac.Role(role)
	return &profile, nil
}

// SetRole updates the stored role for a principal
func (s *PostgresStore) SetRole(ctx context.Context, principalID string, role rbac.Role) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles SET role = $2, updated_at = NOW() WHERE id = $1
	`, principalID, string(role))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	s.logger.Debug("updated stored role",
		zap.String("principal_id", principalID),
		zap.String("role", string(role)),
	)
	return nil
}

// CreateProfile stores a new profile
func (s *PostgresStore) CreateProfile(ctx context.Context, profile *Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, email, display_name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, profile.ID, strings.ToLower(profile.Email), profile.DisplayName,
		string(profile.Role), profile.IsActive, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// ElevatedExists reports whether an elevated account already exists
func (s *PostgresStore) ElevatedExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM profiles WHERE role = $1)
	`, string(rbac.RoleElevated)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query elevated existence: %w", err)
	}
	return exists, nil
}

// GetCredentialByEmail returns the credential for an email
func (s *PostgresStore) GetCredentialByEmail(ctx context.Context, email string) (*Credential, error) {
	var cred Credential
	err := s.db.QueryRow(ctx, `
		SELECT principal_id, email, password_hash FROM credentials WHERE email = $1
	`, strings.ToLower(email)).Scan(&cred.PrincipalID, &cred.Email, &cred.PasswordHash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("query credential: %w", err)
	}
	return &cred, nil
}

// CreateCredential stores a new credential
func (s *PostgresStore) CreateCredential(ctx context.Context, cred *Credential) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO credentials (principal_id, email, password_hash)
		VALUES ($1, $2, $3)
	`, cred.PrincipalID, strings.ToLower(cred.Email), cred.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}
