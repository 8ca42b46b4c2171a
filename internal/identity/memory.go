package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/solvio/solvio-core/internal/rbac"
)

// MemoryStore implements UserStore and CredentialStore in process memory.
// Useful for testing the session core without a live backend.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	creds    map[string]*Credential // keyed by lowercased email
}

// NewMemoryStore creates a new in-memory user store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		creds:    make(map[string]*Credential),
	}
}

// GetRole returns the stored role for a principal
func (s *MemoryStore) GetRole(ctx context.Context, principalID string) (rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[principalID]
	if !ok {
		return "", ErrProfileNotFound
	}
	return profile.Role, nil
}

// GetProfile returns a copy of the stored profile
func (s *MemoryStore) GetProfile(ctx context.Context, principalID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[principalID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *profile
	return &cp, nil
}

// SetRole updates the stored role for a principal
func (s *MemoryStore) SetRole(ctx context.Context, principalID string, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[principalID]
	if !ok {
		return ErrProfileNotFound
	}
	profile.Role = role
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateProfile stores a new profile
func (s *MemoryStore) CreateProfile(ctx context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.profiles[cp.ID] = &cp
	return nil
}

// ElevatedExists reports whether any stored profile holds the elevated role
func (s *MemoryStore) ElevatedExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, profile := range s.profiles {
		if profile.Role == rbac.RoleElevated {
			return true, nil
		}
	}
	return false, nil
}

// GetCredentialByEmail returns the credential for an email
func (s *MemoryStore) GetCredentialByEmail(ctx context.Context, email string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[strings.ToLower(email)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *cred
	return &cp, nil
}

// CreateCredential stores a new credential
func (s *MemoryStore) CreateCredential(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.creds[strings.ToLower(cp.Email)] = &cp
	return nil
}
