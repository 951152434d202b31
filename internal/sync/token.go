package sync

import (
	"context"
	gosync "sync"

	"github.com/kimhsiao/taskin/backend/internal/crypto"
	"github.com/kimhsiao/taskin/backend/internal/db"
	"github.com/kimhsiao/taskin/backend/internal/logging"
)

// TokenStore keeps the bearer token sealed in sync_metadata.
type TokenStore struct {
	repo     db.MetadataRepository
	deviceID string
	secret   string

	mu     gosync.Mutex
	cached string
}

// NewTokenStore creates a TokenStore sealing with a key derived from deviceID.
// The device id is stored next to the token, so this only obfuscates it; use
// WithSecret to key the seal from material kept outside the database.
func NewTokenStore(repo db.MetadataRepository, deviceID string) *TokenStore {
	return &TokenStore{repo: repo, deviceID: deviceID}
}

// WithSecret seals with a key derived from secret instead of the device id.
// A token sealed under the device id is still read and resealed on first use.
func (s *TokenStore) WithSecret(secret string) *TokenStore {
	s.secret = secret
	return s
}

func (s *TokenStore) keyMaterial() string {
	if s.secret != "" {
		return s.secret
	}
	return s.deviceID
}

// Token returns the stored token, "" when none is set.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" {
		return s.cached, nil
	}
	sealed, _, err := s.repo.GetMetadata(ctx, db.MetaAuthToken)
	if err != nil {
		return "", err
	}
	token, err := crypto.DecryptToken(sealed, s.keyMaterial())
	if err != nil && s.secret != "" {
		token, err = s.migrate(ctx, sealed, err)
	}
	if err != nil {
		return "", err
	}
	s.cached = token
	return token, nil
}

// migrate opens a token sealed under the device id and reseals it with the
// secret. original is returned when the fallback also fails.
func (s *TokenStore) migrate(ctx context.Context, sealed string, original error) (string, error) {
	token, err := crypto.DecryptToken(sealed, s.deviceID)
	if err != nil {
		return "", original
	}
	resealed, err := crypto.EncryptToken(token, s.secret)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetMetadata(ctx, db.MetaAuthToken, resealed); err != nil {
		return "", err
	}
	logging.Info("Sync token resealed with configured key")
	return token, nil
}

// SetToken seals and stores token.
func (s *TokenStore) SetToken(ctx context.Context, token string) error {
	sealed, err := crypto.EncryptToken(token, s.keyMaterial())
	if err != nil {
		return err
	}
	if err := s.repo.SetMetadata(ctx, db.MetaAuthToken, sealed); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = token
	s.mu.Unlock()
	return nil
}

// Clear removes the stored token.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.repo.SetMetadata(ctx, db.MetaAuthToken, ""); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()
	return nil
}
