package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvio/solvio-core/internal/audit"
	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/common/events"
	"github.com/solvio/solvio-core/internal/identity"
	"github.com/solvio/solvio-core/internal/rbac"
	"github.com/solvio/solvio-core/internal/securecache"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

type fakeProvider struct {
	mu          sync.Mutex
	sessionID   string
	sessionErr  error
	authErr     error
	invalidated int
}

func (p *fakeProvider) Authenticate(ctx context.Context, creds identity.Credentials) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authErr != nil {
		return "", p.authErr
	}
	return p.sessionID, nil
}

func (p *fakeProvider) AuthenticateExternal(ctx context.Context, token string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authErr != nil {
		return "", p.authErr
	}
	return p.sessionID, nil
}

func (p *fakeProvider) CurrentSessionPrincipalID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return "", p.sessionErr
	}
	return p.sessionID, nil
}

func (p *fakeProvider) InvalidateSession(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated++
	return nil
}

type fakeUserStore struct {
	mu       sync.Mutex
	profiles map[string]*identity.Profile
	err      error
	fetches  int
	// fetchStarted and fetchRelease let tests hold a fetch open to exercise
	// concurrent triggers
	fetchStarted chan struct{}
	fetchRelease chan struct{}
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{profiles: make(map[string]*identity.Profile)}
}

func (s *fakeUserStore) put(p *identity.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
}

func (s *fakeUserStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeUserStore) GetProfile(ctx context.Context, principalID string) (*identity.Profile, error) {
	s.mu.Lock()
	s.fetches++
	started := s.fetchStarted
	release := s.fetchRelease
	err := s.err
	p, ok := s.profiles[principalID]
	var cp identity.Profile
	if ok {
		cp = *p
	}
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return &cp, nil
}

func (s *fakeUserStore) GetRole(ctx context.Context, principalID string) (rbac.Role, error) {
	p, err := s.GetProfile(ctx, principalID)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func (s *fakeUserStore) SetRole(ctx context.Context, principalID string, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[principalID]
	if !ok {
		return identity.ErrProfileNotFound
	}
	p.Role = role
	return nil
}

func (s *fakeUserStore) CreateProfile(ctx context.Context, profile *identity.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	s.profiles[profile.ID] = &cp
	return nil
}

func (s *fakeUserStore) ElevatedExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Role == rbac.RoleElevated {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type testHarness struct {
	manager  *Manager
	provider *fakeProvider
	users    *fakeUserStore
	cache    *securecache.Cache
	sink     *audit.MemorySink
	bus      *events.MemoryBus
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	enc, err := securecache.NewAES256GCMEncrypter(testEncryptionKey)
	require.NoError(t, err)

	provider := &fakeProvider{sessionErr: identity.ErrNoSession}
	users := newFakeUserStore()
	cache := securecache.New(securecache.NewMemoryStore(), enc, nil)
	sink := audit.NewMemorySink("test-audit-secret")
	bus := events.NewMemoryBus()

	manager := NewManager(provider, users, cache, sink, bus, Config{
		RevalidateInterval: time.Hour,
	}, nil)

	t.Cleanup(func() {
		manager.SignOut(context.Background())
		bus.Close()
	})

	return &testHarness{
		manager:  manager,
		provider: provider,
		users:    users,
		cache:    cache,
		sink:     sink,
		bus:      bus,
	}
}

func (h *testHarness) seedUser(id string, role rbac.Role) {
	h.users.put(&identity.Profile{
		ID:       id,
		Email:    id + "@example.com",
		Role:     role,
		IsActive: true,
	})
}

func (h *testHarness) signIn(t *testing.T, id string) {
	t.Helper()
	h.provider.mu.Lock()
	h.provider.sessionID = id
	h.provider.mu.Unlock()
	_, err := h.manager.SignIn(context.Background(), identity.Credentials{Email: id + "@example.com", Password: "irrelevant1234"})
	require.NoError(t, err)
}

func TestInitializeNoSession(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// A leftover fingerprint from a previous run must not survive
	require.NoError(t, h.cache.Put(ctx, securecache.Fingerprint{
		PrincipalID: "stale", Role: rbac.RoleAdmin, LastRevalidatedAt: time.Now(),
	}))

	require.NoError(t, h.manager.Initialize(ctx))
	assert.Equal(t, StateUnauthenticated, h.manager.State())
	assert.Nil(t, h.manager.Current())

	fp, err := h.cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, fp)
}

func TestInitializeRecoversSession(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.provider.sessionErr = nil
	h.provider.sessionID = "user-1"

	require.NoError(t, h.manager.Initialize(ctx))
	assert.Equal(t, StateAuthenticated, h.manager.State())

	p := h.manager.Current()
	require.NotNil(t, p)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, rbac.RoleAdmin, p.Role)
	assert.Contains(t, p.Permissions, rbac.PermRolesAssign)
}

func TestInitializeBackendUnreachableIsFatal(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.provider.sessionErr = errors.New("connection refused")

	err := h.manager.Initialize(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInitializationFailed))
	assert.NotEqual(t, StateUnauthenticated, h.manager.State(),
		"an unreachable backend must never be reported as signed out")
}

func TestInitializeInactiveAccountDiscarded(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.users.put(&identity.Profile{ID: "user-1", Email: "user-1@example.com", Role: rbac.RoleAdmin, IsActive: false})
	h.provider.sessionErr = nil
	h.provider.sessionID = "user-1"

	require.NoError(t, h.manager.Initialize(ctx))
	assert.Equal(t, StateUnauthenticated, h.manager.State())
	assert.Nil(t, h.manager.Current())
	assert.Equal(t, 1, h.provider.invalidated)
}

func TestSignInInstallsPrincipalAndFingerprint(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleStandard)
	h.signIn(t, "user-1")

	assert.Equal(t, StateAuthenticated, h.manager.State())

	fp, err := h.cache.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, "user-1", fp.PrincipalID)
	assert.Equal(t, rbac.RoleStandard, fp.Role)

	entries := h.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionSignIn, entries[0].Action)
}

func TestSignInCreatesProfileForNewPrincipal(t *testing.T) {
	h := newTestHarness(t)

	h.signIn(t, "fresh-user")

	p := h.manager.Current()
	require.NotNil(t, p)
	assert.Equal(t, rbac.RoleStandard, p.Role, "a brand-new principal starts with the lowest role")
}

func TestSignInFailurePropagates(t *testing.T) {
	h := newTestHarness(t)

	h.provider.authErr = apperrors.InvalidCredentials()
	_, err := h.manager.SignIn(context.Background(), identity.Credentials{Email: "x@example.com", Password: "wrongwrong123"})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidCredentials))
	assert.Equal(t, StateUninitialized, h.manager.State())
}

func TestSignOutClearsEverything(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")

	signedOut := make(chan events.Event, 1)
	h.bus.Subscribe(events.TypeSignedOut, func(ctx context.Context, e events.Event) {
		signedOut <- e
	})

	require.NoError(t, h.manager.SignOut(ctx))

	assert.Equal(t, StateUnauthenticated, h.manager.State())
	assert.Nil(t, h.manager.Current())
	assert.Equal(t, 1, h.provider.invalidated)

	fp, err := h.cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, fp)

	select {
	case e := <-signedOut:
		assert.Equal(t, "user-1", e.PrincipalID)
	case <-time.After(time.Second):
		t.Fatal("expected a signed-out event")
	}

	// A second sign-out is a no-op
	require.NoError(t, h.manager.SignOut(ctx))
	assert.Equal(t, 1, h.provider.invalidated)
}

func TestRevalidateUnchangedIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")

	before := h.manager.Current()
	fpBefore, err := h.cache.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, h.manager.Revalidate(ctx))

	after := h.manager.Current()
	assert.Equal(t, before.Role, after.Role)
	assert.Equal(t, before.Permissions, after.Permissions)
	assert.Equal(t, before.LastRevalidatedAt, after.LastRevalidatedAt,
		"an unchanged revalidation must not touch the principal")

	fpAfter, err := h.cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, fpBefore.LastRevalidatedAt, fpAfter.LastRevalidatedAt,
		"an unchanged revalidation must not rewrite the fingerprint")
}

func TestRevalidatePicksUpRoleChange(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleStandard)
	h.signIn(t, "user-1")

	roleChanged := make(chan events.Event, 1)
	h.bus.Subscribe(events.TypeRoleChanged, func(ctx context.Context, e events.Event) {
		roleChanged <- e
	})

	require.NoError(t, h.users.SetRole(ctx, "user-1", rbac.RoleAdmin))
	require.NoError(t, h.manager.Revalidate(ctx))

	p := h.manager.Current()
	require.NotNil(t, p)
	assert.Equal(t, rbac.RoleAdmin, p.Role)
	assert.Contains(t, p.Permissions, rbac.PermRolesAssign)

	fp, err := h.cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, fp.Role)

	select {
	case e := <-roleChanged:
		assert.Equal(t, string(rbac.RoleStandard), e.Payload["previous_role"])
		assert.Equal(t, string(rbac.RoleAdmin), e.Payload["new_role"])
	case <-time.After(time.Second):
		t.Fatal("expected a role-changed event")
	}
}

func TestRevalidateDemotionPublishesDemotedEvent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")

	demoted := make(chan events.Event, 1)
	h.bus.Subscribe(events.TypeDemoted, func(ctx context.Context, e events.Event) {
		demoted <- e
	})

	require.NoError(t, h.users.SetRole(ctx, "user-1", rbac.RoleStandard))
	require.NoError(t, h.manager.Revalidate(ctx))

	select {
	case e := <-demoted:
		assert.Equal(t, string(rbac.RoleAdmin), e.Payload["previous_role"])
		assert.Equal(t, string(rbac.RoleStandard), e.Payload["new_role"])
	case <-time.After(time.Second):
		t.Fatal("expected a demoted event")
	}

	p := h.manager.Current()
	assert.NotContains(t, p.Permissions, rbac.PermRolesAssign)
}

func TestRevalidatePromotionDoesNotPublishDemotedEvent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleStandard)
	h.signIn(t, "user-1")

	demoted := make(chan events.Event, 1)
	h.bus.Subscribe(events.TypeDemoted, func(ctx context.Context, e events.Event) {
		demoted <- e
	})

	require.NoError(t, h.users.SetRole(ctx, "user-1", rbac.RoleElevated))
	require.NoError(t, h.manager.Revalidate(ctx))

	select {
	case <-demoted:
		t.Fatal("a promotion must not publish a demoted event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRevalidateSoftFailRetainsPrincipal(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")

	h.users.setErr(errors.New("i/o timeout"))
	err := h.manager.Revalidate(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNetworkUnavailable))

	// Last-known-good privileges remain usable
	assert.Equal(t, StateAuthenticated, h.manager.State())
	p := h.manager.Current()
	require.NotNil(t, p)
	assert.Equal(t, rbac.RoleAdmin, p.Role)
}

func TestRevalidateDeactivatedAccountSignsOut(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")

	h.users.put(&identity.Profile{ID: "user-1", Email: "user-1@example.com", Role: rbac.RoleAdmin, IsActive: false})
	require.NoError(t, h.manager.Revalidate(ctx))

	assert.Equal(t, StateUnauthenticated, h.manager.State())
	assert.Nil(t, h.manager.Current())
}

func TestRevalidateWhenUnauthenticatedIsNoop(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.manager.Initialize(context.Background()))
	require.NoError(t, h.manager.Revalidate(context.Background()))
	assert.Zero(t, h.users.fetchCount())
}

func TestConcurrentTriggersSingleFlight(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleAdmin)
	h.signIn(t, "user-1")
	baseline := h.users.fetchCount()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.users.mu.Lock()
	h.users.fetchStarted = started
	h.users.fetchRelease = release
	h.users.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		first <- h.manager.Revalidate(ctx)
	}()
	<-started

	// Triggers arriving while a revalidation is in flight return immediately
	// without fetching
	for i := 0; i < 5; i++ {
		require.NoError(t, h.manager.Revalidate(ctx))
	}
	assert.Equal(t, baseline+1, h.users.fetchCount())

	h.users.mu.Lock()
	h.users.fetchStarted = nil
	h.users.fetchRelease = nil
	h.users.mu.Unlock()
	close(release)
	require.NoError(t, <-first)

	// The slot frees up once the in-flight revalidation completes
	require.NoError(t, h.manager.Revalidate(ctx))
	assert.Equal(t, baseline+2, h.users.fetchCount())
}

func TestSignOutDuringRevalidateIsNotResurrected(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.seedUser("user-1", rbac.RoleStandard)
	h.signIn(t, "user-1")

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.users.mu.Lock()
	h.users.fetchStarted = started
	h.users.fetchRelease = release
	h.users.mu.Unlock()

	// Make the fetch observe a change so Revalidate would install a fresh
	// principal if it ignored the race
	require.NoError(t, h.users.SetRole(ctx, "user-1", rbac.RoleAdmin))

	done := make(chan error, 1)
	go func() {
		done <- h.manager.Revalidate(ctx)
	}()
	<-started

	h.users.mu.Lock()
	h.users.fetchStarted = nil
	h.users.fetchRelease = nil
	h.users.mu.Unlock()

	require.NoError(t, h.manager.SignOut(ctx))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, StateUnauthenticated, h.manager.State())
	assert.Nil(t, h.manager.Current(), "a completed fetch must not revive a signed-out session")
}

func TestBackgroundLoopRevalidates(t *testing.T) {
	h := newTestHarness(t)

	enc, err := securecache.NewAES256GCMEncrypter(testEncryptionKey)
	require.NoError(t, err)

	manager := NewManager(h.provider, h.users, securecache.New(securecache.NewMemoryStore(), enc, nil),
		audit.NewMemorySink("test-audit-secret"), events.NewMemoryBus(), Config{
			RevalidateInterval: 20 * time.Millisecond,
		}, nil)
	t.Cleanup(func() { manager.SignOut(context.Background()) })

	h.seedUser("user-1", rbac.RoleStandard)
	h.provider.mu.Lock()
	h.provider.sessionID = "user-1"
	h.provider.mu.Unlock()
	_, err = manager.SignIn(context.Background(), identity.Credentials{Email: "user-1@example.com", Password: "irrelevant1234"})
	require.NoError(t, err)
	baseline := h.users.fetchCount()

	require.Eventually(t, func() bool {
		return h.users.fetchCount() > baseline
	}, 2*time.Second, 10*time.Millisecond, "the background loop should fetch on its own")

	// After sign-out the loop must stop fetching
	require.NoError(t, manager.SignOut(context.Background()))
	quiet := h.users.fetchCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, quiet, h.users.fetchCount())
}

func TestCachedFingerprintIsDisplayOnly(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// A fingerprint claiming elevated privileges grants nothing: with no
	// authenticated principal every permission check is false
	require.NoError(t, h.cache.Put(ctx, securecache.Fingerprint{
		PrincipalID: "user-1", Role: rbac.RoleElevated, LastRevalidatedAt: time.Now(),
	}))

	fp, err := h.manager.CachedFingerprint(ctx)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, rbac.RoleElevated, fp.Role)

	assert.Nil(t, h.manager.Current())
}
