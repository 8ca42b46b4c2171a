package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/audit"
	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/rbac"
)

// Bootstrapper performs the one-time creation of the sole elevated account.
// This is the only path through which the elevated role is ever granted;
// every runtime assignment targeting it is rejected by the role model.
type Bootstrapper struct {
	users  UserStore
	creds  CredentialStore
	sink   audit.Sink
	logger *zap.Logger
}

// NewBootstrapper creates a bootstrapper over the given stores
func NewBootstrapper(users UserStore, creds CredentialStore, sink audit.Sink, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		users:  users,
		creds:  creds,
		sink:   sink,
		logger: logger.With(zap.String("component", "bootstrap")),
	}
}

// EnsureElevated creates the elevated account if none exists. It is safe to
// call on every boot; a second call with an elevated account present returns
// apperrors.ElevatedExists.
func (b *Bootstrapper) EnsureElevated(ctx context.Context, email, displayName, password string) (*Profile, error) {
	exists, err := b.users.ElevatedExists(ctx)
	if err != nil {
		return nil, apperrors.NetworkUnavailable("check elevated existence", err)
	}
	if exists {
		return nil, apperrors.ElevatedExists()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash bootstrap password: %w", err)
	}

	profile := &Profile{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		Role:        rbac.RoleElevated,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := b.users.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create elevated profile: %w", err)
	}

	if err := b.creds.CreateCredential(ctx, &Credential{
		PrincipalID:  profile.ID,
		Email:        email,
		PasswordHash: hash,
	}); err != nil {
		return nil, fmt.Errorf("create elevated credential: %w", err)
	}

	entry := audit.NewEntry(audit.ActionBootstrap, "system", profile.ID).
		WithRoles("", rbac.RoleElevated).
		WithReason("one-time elevated bootstrap")
	if err := b.sink.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append bootstrap audit entry: %w", err)
	}

	b.logger.Info("created elevated account",
		zap.String("principal_id", profile.ID),
		zap.String("email", email),
	)
	return profile, nil
}
