// Package tokenstore persists encrypted OAuth2 token pairs per context key
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const keyPrefix = "tokens:"

// ErrEmptyContextKey indicates a missing tenant key
var ErrEmptyContextKey = errors.New("empty context key")

// Record is the cached token pair for one context key
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExpiresIn returns the whole seconds left before expiry at now
func (r *Record) ExpiresIn(now time.Time) int {
	if r.ExpiresAt.IsZero() {
		return 0
	}
	d := r.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// HasRefreshToken reports whether the record can be refreshed
func (r *Record) HasRefreshToken() bool {
	return r.RefreshToken != ""
}

// Store reads and writes Records through an encrypting Cipher
type Store struct {
	cache     Cache
	cipher    Cipher
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithRetention expires stored records from the cache after d
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// WithClock sets the time source used for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a token store
func New(cache Cache, cipher Cipher, opts ...Option) *Store {
	s := &Store{
		cache:  cache,
		cipher: cipher,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tokenstore")
	return s
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Store encrypts and saves the token pair, replacing any previous record
func (s *Store) Store(ctx context.Context, contextKey, accessToken, refreshToken string, expiresAt time.Time) error {
	if contextKey == "" {
		return ErrEmptyContextKey
	}

	data, err := json.Marshal(Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	// the storage key is bound as associated data so a blob copied to
	// another context key fails to open
	key := keyPrefix + contextKey
	blob, err := s.cipher.Seal(data, []byte(key))
	if err != nil {
		return fmt.Errorf("encrypting record: %w", err)
	}

	if err := s.cache.Set(ctx, key, blob, s.retention); err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	return nil
}

// StoreExpiresIn saves the pair with expiry computed from a lifetime in
// seconds at write time
func (s *Store) StoreExpiresIn(ctx context.Context, contextKey, accessToken, refreshToken string, expiresIn int) error {
	var expiresAt time.Time
	if expiresIn > 0 {
		expiresAt = s.now().Add(time.Duration(expiresIn) * time.Second)
	}
	return s.Store(ctx, contextKey, accessToken, refreshToken, expiresAt)
}

// Retrieve returns the record for contextKey, or nil when absent or
// unreadable. Records that fail to decrypt or decode are purged.
func (s *Store) Retrieve(ctx context.Context, contextKey string) *Record {
	if contextKey == "" {
		return nil
	}
	key := keyPrefix + contextKey

	blob, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Error("reading token record", "context_key", contextKey, "error", err)
		}
		return nil
	}

	rec, err := s.decode(blob, key)
	if err != nil {
		s.logger.Warn("purging corrupted token record", "context_key", contextKey, "error", err)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Error("purging token record", "context_key", contextKey, "error", err)
		}
		return nil
	}
	return rec
}

func (s *Store) decode(blob []byte, key string) (*Record, error) {
	data, err := s.cipher.Open(blob, []byte(key))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, errors.New("record has no access token")
	}
	return &rec, nil
}

// IsExpired reports whether no usable token exists for contextKey
func (s *Store) IsExpired(ctx context.Context, contextKey string) bool {
	rec := s.Retrieve(ctx, contextKey)
	if rec == nil || rec.ExpiresAt.IsZero() {
		return true
	}
	return !s.now().Before(rec.ExpiresAt)
}

// AccessToken returns the stored access token
func (s *Store) AccessToken(ctx context.Context, contextKey string) (string, bool) {
	rec := s.Retrieve(ctx, contextKey)
	if rec == nil {
		return "", false
	}
	return rec.AccessToken, true
}

// RefreshToken returns the stored refresh token
func (s *Store) RefreshToken(ctx context.Context, contextKey string) (string, bool) {
	rec := s.Retrieve(ctx, contextKey)
	if rec == nil || rec.RefreshToken == "" {
		return "", false
	}
	return rec.RefreshToken, true
}

// Clear removes the record for contextKey
func (s *Store) Clear(ctx context.Context, contextKey string) error {
	if contextKey == "" {
		return ErrEmptyContextKey
	}
	if err := s.cache.Delete(ctx, keyPrefix+contextKey); err != nil {
		return fmt.Errorf("clearing record: %w", err)
	}
	return nil
}

// CheckHealth verifies the cache is operational
func (s *Store) CheckHealth(ctx context.Context) error {
	if err := s.cache.CheckHealth(ctx); err != nil {
		return fmt.Errorf("token cache health check failed: %w", err)
	}
	return nil
}
