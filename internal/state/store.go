package state

import (
	"context"
	"errors"
	"sync"
	"time"
)

const slotPrefix = "oauth2_state:"

// ErrNotFound indicates no token is stored for a slot
var ErrNotFound = errors.New("state not found")

// Store provides per-session key/value storage for state tokens
type Store interface {
	// Get returns the value for key or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Consume atomically removes key if it still holds value. It reports
	// whether this call removed it.
	Consume(ctx context.Context, key, value string) (bool, error)

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-instance hosts and tests
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value for key if present and unexpired
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set stores value with an optional ttl
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Consume removes key if it holds an unexpired value
func (s *MemoryStore) Consume(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.entries, key)
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// CheckHealth always succeeds for the in-memory store
func (s *MemoryStore) CheckHealth(context.Context) error {
	return nil
}
