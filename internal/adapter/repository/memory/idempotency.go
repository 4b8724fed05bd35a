package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iho/timebank/internal/usecase"
)

type storedResponse struct {
	value     []byte
	expiresAt time.Time
}

// IdempotencyStore implements usecase.IdempotencyStore within one process.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]storedResponse
	now     func() time.Time
}

// NewIdempotencyStore creates a new IdempotencyStore sharing the store's clock.
func NewIdempotencyStore(store *Store) *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[string]storedResponse), now: store.now}
}

// CheckAndSet atomically checks if key exists, sets if not.
func (s *IdempotencyStore) CheckAndSet(_ context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && e.expiresAt.After(now) {
		return true, slices.Clone(e.value), nil
	}
	if response == nil {
		response = []byte(usecase.IdempotencyInFlight)
	}
	s.entries[key] = storedResponse{value: slices.Clone(response), expiresAt: now.Add(ttl)}
	return false, nil, nil
}

// Update replaces the stored response for key.
func (s *IdempotencyStore) Update(_ context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = storedResponse{value: slices.Clone(response), expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes key.
func (s *IdempotencyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
