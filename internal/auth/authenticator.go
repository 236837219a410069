package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/pkg/cache"
)

// keyCacheTTLSeconds bounds how stale a read-through key record may be.
// Revocation takes up to this long to propagate to hot keys.
const keyCacheTTLSeconds = 60

// KeyStore is the slice of the persistence collaborator the authenticator
// needs.
type KeyStore interface {
	GetAPIKeyByHash(ctx context.Context, secretHash string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Authenticator validates presented API keys against the key store, with a
// short read-through cache in front of it.
type Authenticator struct {
	keys   KeyStore
	store  *cache.Store
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewAuthenticator(keys KeyStore, store *cache.Store, logger logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		keys:   keys,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// HashSecret returns the hex SHA-256 of a presented secret. Lookup always
// goes through this hash; the plaintext secret is never stored or compared
// in SQL.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns a new random key secret. The "cdx_" prefix makes
// leaked keys greppable.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key secret: %w", err)
	}
	return "cdx_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authenticate resolves the presented secret to a key record and checks it
// against path. Failures return *AuthError with a distinct reason.
func (a *Authenticator) Authenticate(ctx context.Context, presented, path string) (*models.APIKey, error) {
	key, err := a.lookup(ctx, presented)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &AuthError{Reason: ReasonNotFound}
		}
		return nil, err
	}

	if key.Revoked {
		return nil, &AuthError{Reason: ReasonRevoked}
	}
	if key.ExpiresAt != nil && a.now().After(*key.ExpiresAt) {
		return nil, &AuthError{Reason: ReasonExpired}
	}
	if !key.AllowsPath(path) {
		return nil, &AuthError{Reason: ReasonPathNotAllowed}
	}

	// Off the response path; a failed touch is not worth a request failure.
	go func() {
		if err := a.keys.TouchAPIKey(context.Background(), key.ID, a.now()); err != nil {
			a.logger.WithError(err).WithField("key_id", key.ID).Warn("failed to update key last_used_at")
		}
	}()

	return key, nil
}

func (a *Authenticator) lookup(ctx context.Context, presented string) (*models.APIKey, error) {
	hash := HashSecret(presented)
	cacheKey := "apikey:" + hash

	if cached, ok := a.store.Get(cacheKey); ok {
		if key, ok := cached.(*models.APIKey); ok {
			return key, nil
		}
	}

	key, err := a.keys.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	a.store.Set(cacheKey, key, keyCacheTTLSeconds)
	return key, nil
}
