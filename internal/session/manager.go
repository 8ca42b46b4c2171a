// Package session owns the authenticated principal and its lifecycle: sign-in,
// sign-out, and periodic revalidation against the authoritative user store.
// The manager is the single writer of the principal; everything else reads
// snapshots through the authorization guard.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/audit"
	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/common/events"
	"github.com/solvio/solvio-core/internal/identity"
	"github.com/solvio/solvio-core/internal/metrics"
	"github.com/solvio/solvio-core/internal/principal"
	"github.com/solvio/solvio-core/internal/rbac"
	"github.com/solvio/solvio-core/internal/securecache"
)

// State represents the lifecycle state of the session manager
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Config holds configuration for the session manager
type Config struct {
	// RevalidateInterval is how often the background loop re-fetches the
	// authoritative role (default: 5 minutes)
	RevalidateInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RevalidateInterval: 5 * time.Minute,
	}
}

// Manager drives the session lifecycle. All collaborators are injected;
// the manager holds no ambient state.
type Manager struct {
	provider identity.Provider
	users    identity.UserStore
	cache    *securecache.Cache
	sink     audit.Sink
	bus      events.Bus
	config   Config
	logger   *zap.Logger

	// mu is the single critical section through which every principal
	// mutation is funneled
	mu      sync.Mutex
	state   State
	current *principal.Principal

	// revalidating is the single-slot in-flight flag: a trigger that finds
	// it set is a no-op, never queued
	revalidating atomic.Bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewManager creates a session manager over the injected collaborators
func NewManager(provider identity.Provider, users identity.UserStore, cache *securecache.Cache, sink audit.Sink, bus events.Bus, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RevalidateInterval <= 0 {
		config.RevalidateInterval = DefaultConfig().RevalidateInterval
	}
	return &Manager{
		provider: provider,
		users:    users,
		cache:    cache,
		sink:     sink,
		bus:      bus,
		config:   config,
		logger:   logger.With(zap.String("component", "session-manager")),
		state:    StateUninitialized,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a snapshot of the authenticated principal, or nil when
// unauthenticated. Satisfies the guard's principal source.
func (m *Manager) Current() *principal.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// CachedFingerprint returns the persisted fingerprint for pre-populating
// display state before the first authoritative fetch. Never use it for
// authorization decisions.
func (m *Manager) CachedFingerprint(ctx context.Context) (*securecache.Fingerprint, error) {
	return m.cache.Get(ctx)
}

// Initialize recovers an existing provider session at process start. With no
// recoverable session it clears stale cache state and settles in
// StateUnauthenticated. Failure to reach the identity provider or the user
// store is fatal: it is surfaced as an initialization error, never silently
// treated as unauthenticated.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return apperrors.InitializationFailed(errors.New("already initialized"))
	}
	m.state = StateInitializing
	m.mu.Unlock()

	principalID, err := m.provider.CurrentSessionPrincipalID(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			if clearErr := m.cache.Clear(ctx); clearErr != nil {
				m.logger.Warn("failed to clear stale fingerprint", zap.Error(clearErr))
			}
			m.setState(StateUnauthenticated)
			return nil
		}
		m.setState(StateUninitialized)
		return apperrors.InitializationFailed(err)
	}

	profile, err := m.users.GetProfile(ctx, principalID)
	if err != nil {
		m.setState(StateUninitialized)
		return apperrors.InitializationFailed(err)
	}

	if !profile.IsActive {
		// A deactivated account does not survive restart recovery
		m.provider.InvalidateSession(ctx)
		m.cache.Clear(ctx)
		m.setState(StateUnauthenticated)
		m.logger.Info("recovered session belongs to inactive account, discarded",
			zap.String("principal_id", principalID))
		return nil
	}

	m.installPrincipal(ctx, profile)
	m.logger.Info("recovered session",
		zap.String("principal_id", principalID),
		zap.String("role", string(profile.Role)),
	)
	return nil
}

// SignIn authenticates with credentials and installs the principal
func (m *Manager) SignIn(ctx context.Context, creds identity.Credentials) (*principal.Principal, error) {
	p, err := m.signIn(ctx, "password", creds.Email, func() (string, error) {
		return m.provider.Authenticate(ctx, creds)
	})
	return p, err
}

// SignInWithExternalProvider authenticates with a federated token and
// installs the principal
func (m *Manager) SignInWithExternalProvider(ctx context.Context, token string) (*principal.Principal, error) {
	return m.signIn(ctx, "external", "", func() (string, error) {
		return m.provider.AuthenticateExternal(ctx, token)
	})
}

// signIn is the shared sign-in path. Foreground by definition: every failure
// is surfaced to the caller.
func (m *Manager) signIn(ctx context.Context, method, email string, authenticate func() (string, error)) (*principal.Principal, error) {
	principalID, err := authenticate()
	if err != nil {
		metrics.RecordSignInAttempt(method, metrics.ResultFailure)
		return nil, err
	}

	profile, err := m.users.GetProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			// First sign-in of a new principal: default role is standard.
			// Only the bootstrap path ever sets a higher role.
			profile = &identity.Profile{
				ID:       principalID,
				Email:    email,
				Role:     rbac.RoleStandard,
				IsActive: true,
			}
			if err := m.users.CreateProfile(ctx, profile); err != nil {
				metrics.RecordSignInAttempt(method, metrics.ResultFailure)
				return nil, apperrors.NetworkUnavailable("create profile", err)
			}
		} else {
			metrics.RecordSignInAttempt(method, metrics.ResultFailure)
			return nil, apperrors.NetworkUnavailable("fetch profile", err)
		}
	}

	if !profile.IsActive {
		m.provider.InvalidateSession(ctx)
		metrics.RecordSignInAttempt(method, metrics.ResultDenied)
		return nil, apperrors.AccountInactive(principalID)
	}

	installed := m.installPrincipal(ctx, profile)

	entry := audit.NewEntry(audit.ActionSignIn, principalID, principalID)
	if err := m.sink.Append(ctx, entry); err != nil {
		m.logger.Warn("failed to append sign-in audit entry", zap.Error(err))
	}
	metrics.RecordSignInAttempt(method, metrics.ResultSuccess)

	return installed, nil
}

// SignOut invalidates the provider session, clears the principal and the
// persisted fingerprint, and cancels the revalidation loop
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	principalID := m.current.ID
	m.current = nil
	m.state = StateUnauthenticated
	m.stopLoopLocked()
	m.mu.Unlock()

	if err := m.provider.InvalidateSession(ctx); err != nil {
		m.logger.Warn("failed to invalidate provider session", zap.Error(err))
	}
	if err := m.cache.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear session fingerprint", zap.Error(err))
	}

	entry := audit.NewEntry(audit.ActionSignOut, principalID, principalID)
	if err := m.sink.Append(ctx, entry); err != nil {
		m.logger.Warn("failed to append sign-out audit entry", zap.Error(err))
	}
	metrics.RecordSignOut()

	m.bus.Publish(ctx, events.NewEvent(events.TypeSignedOut, principalID, nil))
	m.logger.Info("signed out", zap.String("principal_id", principalID))
	return nil
}

// Revalidate fetches the authoritative role and permission set for the
// current principal. Unchanged privileges leave the principal and the cache
// untouched. A transient fetch failure retains the last-known-good principal
// and returns a NetworkUnavailable error the caller may ignore (the
// background loop does) or surface (RefreshUser does).
//
// Only one revalidation is ever in flight: a trigger arriving while one is
// outstanding returns immediately without fetching.
func (m *Manager) Revalidate(ctx context.Context) error {
	if !m.revalidating.CompareAndSwap(false, true) {
		metrics.RecordRevalidationSuppressed()
		return nil
	}
	defer m.revalidating.Store(false)

	m.mu.Lock()
	if m.state != StateAuthenticated || m.current == nil {
		m.mu.Unlock()
		return nil
	}
	principalID := m.current.ID
	m.mu.Unlock()

	// The fetch happens outside the critical section so readers are never
	// blocked on network I/O
	profile, err := m.users.GetProfile(ctx, principalID)
	if err != nil {
		metrics.RecordRevalidation(metrics.ResultSoftFailed)
		m.logger.Warn("revalidation fetch failed, retaining current principal",
			zap.String("principal_id", principalID),
			zap.Error(err),
		)
		return apperrors.NetworkUnavailable("revalidate", err)
	}

	if !profile.IsActive {
		m.logger.Info("account deactivated, signing out",
			zap.String("principal_id", principalID))
		metrics.RecordRevalidation(metrics.ResultChanged)
		return m.SignOut(ctx)
	}

	fresh := principal.New(profile.ID, profile.Email, profile.Role, profile.IsActive, time.Now().UTC())

	m.mu.Lock()
	// A sign-out may have raced the fetch; never resurrect a cleared principal
	if m.state != StateAuthenticated || m.current == nil || m.current.ID != principalID {
		m.mu.Unlock()
		return nil
	}

	if m.current.SamePrivileges(fresh) {
		// Idempotent outcome: nothing observable changes
		m.mu.Unlock()
		metrics.RecordRevalidation(metrics.ResultUnchanged)
		m.bus.Publish(ctx, events.NewEvent(events.TypeRevalidated, principalID, map[string]interface{}{
			"changed": false,
		}))
		return nil
	}

	previousRole := m.current.Role
	m.current = fresh
	m.mu.Unlock()

	if err := m.cache.Put(ctx, securecache.Fingerprint{
		PrincipalID:       fresh.ID,
		Role:              fresh.Role,
		LastRevalidatedAt: fresh.LastRevalidatedAt,
	}); err != nil {
		m.logger.Warn("failed to persist refreshed fingerprint", zap.Error(err))
	}

	metrics.RecordRevalidation(metrics.ResultChanged)
	m.bus.Publish(ctx, events.NewEvent(events.TypeRevalidated, principalID, map[string]interface{}{
		"changed": true,
	}))
	m.bus.Publish(ctx, events.NewEvent(events.TypeRoleChanged, principalID, map[string]interface{}{
		"previous_role": string(previousRole),
		"new_role":      string(fresh.Role),
	}))

	if rbac.LevelOf(fresh.Role) < rbac.LevelOf(previousRole) {
		// Privileged views must be exited; the consumer decides how
		m.bus.Publish(ctx, events.NewEvent(events.TypeDemoted, principalID, map[string]interface{}{
			"previous_role": string(previousRole),
			"new_role":      string(fresh.Role),
		}))
	}

	m.logger.Info("principal revalidated with changed privileges",
		zap.String("principal_id", principalID),
		zap.String("previous_role", string(previousRole)),
		zap.String("new_role", string(fresh.Role)),
	)
	return nil
}

// RefreshUser triggers a foreground revalidation. Unlike the background loop
// it surfaces transient failures to the caller. A refresh racing the timer
// shares its single in-flight slot.
func (m *Manager) RefreshUser(ctx context.Context) error {
	return m.Revalidate(ctx)
}

// installPrincipal swaps in a fresh principal, persists the fingerprint, and
// ensures the revalidation loop is running
func (m *Manager) installPrincipal(ctx context.Context, profile *identity.Profile) *principal.Principal {
	fresh := principal.New(profile.ID, profile.Email, profile.Role, profile.IsActive, time.Now().UTC())

	m.mu.Lock()
	m.current = fresh
	m.state = StateAuthenticated
	m.startLoopLocked()
	m.mu.Unlock()

	if err := m.cache.Put(ctx, securecache.Fingerprint{
		PrincipalID:       fresh.ID,
		Role:              fresh.Role,
		LastRevalidatedAt: fresh.LastRevalidatedAt,
	}); err != nil {
		m.logger.Warn("failed to persist session fingerprint", zap.Error(err))
	}

	m.bus.Publish(ctx, events.NewEvent(events.TypeSignedIn, fresh.ID, map[string]interface{}{
		"role": string(fresh.Role),
	}))

	return fresh.Clone()
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// startLoopLocked starts the background revalidation ticker. Caller holds mu.
func (m *Manager) startLoopLocked() {
	if m.loopCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done

	interval := m.config.RevalidateInterval
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Background maintenance fails soft: transient errors are
				// logged inside Revalidate and otherwise ignored
				_ = m.Revalidate(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// stopLoopLocked cancels the background loop. Caller holds mu.
func (m *Manager) stopLoopLocked() {
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
		m.loopDone = nil
	}
}

// Close stops the background revalidation loop without touching the session.
// The provider session and fingerprint survive so the next process can
// recover them through Initialize.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLoopLocked()
	return nil
}
