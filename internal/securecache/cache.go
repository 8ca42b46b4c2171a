package securecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/rbac"
)

const fingerprintKey = "session_fingerprint"

// Fingerprint is the persisted subset of a session. It exists purely to
// pre-populate a "probably still valid" state before the first authoritative
// fetch completes; it is never treated as a source of truth.
type Fingerprint struct {
	PrincipalID       string    `json:"principal_id"`
	Role              rbac.Role `json:"role"`
	LastRevalidatedAt time.Time `json:"last_revalidated_at"`
}

// Cache stores the session fingerprint encrypted at rest
type Cache struct {
	kv     KeyValueStore
	enc    Encrypter
	logger *zap.Logger
}

// New creates a fingerprint cache over the given store and encrypter
func New(kv KeyValueStore, enc Encrypter, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		kv:     kv,
		enc:    enc,
		logger: logger.With(zap.String("component", "securecache")),
	}
}

// Put persists the fingerprint, replacing any previous one
func (c *Cache) Put(ctx context.Context, fp Fingerprint) error {
	plaintext, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}

	sealed, err := c.enc.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt fingerprint: %w", err)
	}

	if err := c.kv.Put(ctx, fingerprintKey, sealed); err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}

	c.logger.Debug("persisted session fingerprint",
		zap.String("principal_id", fp.PrincipalID),
		zap.String("role", string(fp.Role)),
	)
	return nil
}

// Get retrieves the fingerprint, or nil when none is stored. A fingerprint
// that cannot be decrypted or parsed is discarded and reported as absent;
// the cache carries no authority worth recovering.
func (c *Cache) Get(ctx context.Context) (*Fingerprint, error) {
	sealed, err := c.kv.Get(ctx, fingerprintKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load fingerprint: %w", err)
	}

	plaintext, err := c.enc.Decrypt(sealed)
	if err != nil {
		c.logger.Warn("discarding undecryptable session fingerprint", zap.Error(err))
		c.Clear(ctx)
		return nil, nil
	}

	var fp Fingerprint
	if err := json.Unmarshal(plaintext, &fp); err != nil {
		c.logger.Warn("discarding malformed session fingerprint", zap.Error(err))
		c.Clear(ctx)
		return nil, nil
	}

	return &fp, nil
}

// Clear removes the persisted fingerprint
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.kv.Delete(ctx, fingerprintKey); err != nil {
		return fmt.Errorf("clear fingerprint: %w", err)
	}
	return nil
}
