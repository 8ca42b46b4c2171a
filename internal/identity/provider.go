package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/securecache"
)

const providerSessionKey = "provider_session"

// providerSession is the persisted provider-side session record
type providerSession struct {
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ProviderConfig holds configuration for the local identity provider
type ProviderConfig struct {
	SessionTTL time.Duration // Provider session lifetime (default: 30 days)
	JWTSecret  string        // HMAC secret for federated tokens
	JWTIssuer  string        // Expected issuer of federated tokens
}

// DefaultProviderConfig returns sensible defaults
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		SessionTTL: 30 * 24 * time.Hour,
		JWTIssuer:  "solvio",
	}
}

// LocalProvider implements Provider against a credential store, with the
// provider session persisted through a key-value store so it survives
// process restarts. Federated sign-in accepts HS256 tokens minted by the
// configured issuer.
type LocalProvider struct {
	creds  CredentialStore
	kv     securecache.KeyValueStore
	config ProviderConfig
	logger *zap.Logger
}

// NewLocalProvider creates a local identity provider
func NewLocalProvider(creds CredentialStore, kv securecache.KeyValueStore, config ProviderConfig, logger *zap.Logger) *LocalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultProviderConfig().SessionTTL
	}
	return &LocalProvider{
		creds:  creds,
		kv:     kv,
		config: config,
		logger: logger.With(zap.String("component", "identity-provider")),
	}
}

// Authenticate verifies the email/password pair and opens a provider session
func (p *LocalProvider) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	cred, err := p.creds.GetCredentialByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return "", apperrors.InvalidCredentials()
		}
		return "", apperrors.NetworkUnavailable("authenticate", err)
	}

	ok, err := VerifyPassword(creds.Password, cred.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		p.logger.Debug("password mismatch", zap.String("email", creds.Email))
		return "", apperrors.InvalidCredentials()
	}

	if err := p.openSession(ctx, cred.PrincipalID); err != nil {
		return "", err
	}

	return cred.PrincipalID, nil
}

// AuthenticateExternal verifies a federated HS256 token and opens a provider
// session for the principal it asserts
func (p *LocalProvider) AuthenticateExternal(ctx context.Context, tokenString string) (string, error) {
	if p.config.JWTSecret == "" {
		return "", apperrors.InvalidToken("external sign-in is not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.config.JWTSecret), nil
	}, jwt.WithIssuer(p.config.JWTIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", apperrors.InvalidToken(err.Error())
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", apperrors.InvalidToken("token carries no subject")
	}

	if err := p.openSession(ctx, subject); err != nil {
		return "", err
	}

	return subject, nil
}

// CurrentSessionPrincipalID returns the principal of a still-valid provider
// session, or ErrNoSession
func (p *LocalProvider) CurrentSessionPrincipalID(ctx context.Context) (string, error) {
	data, err := p.kv.Get(ctx, providerSessionKey)
	if err != nil {
		if errors.Is(err, securecache.ErrKeyNotFound) {
			return "", ErrNoSession
		}
		return "", apperrors.NetworkUnavailable("load provider session", err)
	}

	var session providerSession
	if err := json.Unmarshal(data, &session); err != nil {
		// Unreadable session records are torn down, not trusted
		p.kv.Delete(ctx, providerSessionKey)
		return "", ErrNoSession
	}

	if time.Now().After(session.ExpiresAt) {
		p.kv.Delete(ctx, providerSessionKey)
		return "", ErrNoSession
	}

	return session.PrincipalID, nil
}

// InvalidateSession tears down the provider-side session
func (p *LocalProvider) InvalidateSession(ctx context.Context) error {
	if err := p.kv.Delete(ctx, providerSessionKey); err != nil {
		return fmt.Errorf("invalidate provider session: %w", err)
	}
	return nil
}

func (p *LocalProvider) openSession(ctx context.Context, principalID string) error {
	session := providerSession{
		PrincipalID: principalID,
		ExpiresAt:   time.Now().Add(p.config.SessionTTL),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal provider session: %w", err)
	}

	if err := p.kv.Put(ctx, providerSessionKey, data); err != nil {
		return apperrors.NetworkUnavailable("store provider session", err)
	}

	p.logger.Debug("opened provider session",
		zap.String("principal_id", principalID),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return nil
}
