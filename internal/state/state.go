// Package state issues and validates single-use OAuth2 state tokens that
// bind an authorization callback to the session that started it
package state

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// TokenLength is the number of characters in a generated state token
	TokenLength = 48

	// DefaultTTL bounds how long an abandoned authorization attempt lingers
	DefaultTTL = 10 * time.Minute

	// DefaultContextKey is used when no context key is configured
	DefaultContextKey = "default"

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrEmptySession indicates a missing session identifier
	ErrEmptySession = errors.New("empty session id")

	// ErrEmptyToken indicates an attempt to store an empty state token
	ErrEmptyToken = errors.New("empty state token")
)

// Manager generates, stores and validates state tokens for one context key
type Manager struct {
	store      Store
	ttl        time.Duration
	contextKey string
	base       *slog.Logger
	logger     *slog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithTTL sets how long a stored token remains valid
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithContextKey binds the manager to a tenant context key
func WithContextKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.contextKey = key
		}
	}
}

// WithLogger sets the logger used for store failures
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.base = logger
		}
	}
}

// NewManager creates a state manager over store
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		ttl:        DefaultTTL,
		contextKey: DefaultContextKey,
		base:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.base.With("component", "state", "context_key", m.contextKey)
	return m
}

// ForContext returns a manager sharing the store but bound to key
func (m *Manager) ForContext(key string) *Manager {
	if key == "" || key == m.contextKey {
		return m
	}
	clone := *m
	clone.contextKey = key
	clone.logger = m.base.With("component", "state", "context_key", key)
	return &clone
}

// ContextKey returns the tenant key the manager is bound to
func (m *Manager) ContextKey() string {
	return m.contextKey
}

// Generate returns a fresh random token. It is not stored.
func (m *Manager) Generate() (string, error) {
	return generateToken(TokenLength)
}

// Store saves token in the session's slot, replacing any previous token
func (m *Manager) Store(ctx context.Context, sessionID, token string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	if token == "" {
		return ErrEmptyToken
	}
	if err := m.store.Set(ctx, m.slotKey(sessionID), token, m.ttl); err != nil {
		return fmt.Errorf("storing state: %w", err)
	}
	return nil
}

// Validate reports whether candidate matches the stored token. A match
// consumes the slot; of concurrent matches only the one that removes it
// succeeds. Store failures are logged and treated as a mismatch.
func (m *Manager) Validate(ctx context.Context, sessionID, candidate string) bool {
	if sessionID == "" || candidate == "" {
		return false
	}

	key := m.slotKey(sessionID)
	stored, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Error("reading state slot", "error", err)
		}
		return false
	}
	if stored == "" {
		return false
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		return false
	}

	consumed, err := m.store.Consume(ctx, key, stored)
	if err != nil {
		m.logger.Error("consuming state slot", "error", err)
		return false
	}
	return consumed
}

// Clear removes any stored token for the session
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	if err := m.store.Delete(ctx, m.slotKey(sessionID)); err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}
	return nil
}

// CheckHealth verifies the state store is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("state store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) slotKey(sessionID string) string {
	return slotPrefix + m.contextKey + ":" + sessionID
}

// generateToken draws length characters uniformly from alphabet
func generateToken(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		c, err := selectRandomChar(alphabet)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// selectRandomChar picks a character without modulo bias
func selectRandomChar(available string) (byte, error) {
	n := len(available)
	maxNeeded := 256 - (256 % n)

	buf := make([]byte, 1)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, fmt.Errorf("generating random byte: %w", err)
		}
		if int(buf[0]) >= maxNeeded {
			continue
		}
		return available[int(buf[0])%n], nil
	}
}
