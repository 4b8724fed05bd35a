package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iho/timebank/internal/domain"
)

type heldKey struct {
	token     string
	expiresAt time.Time
}

// ScheduleLocker implements usecase.ScheduleLocker within one process.
type ScheduleLocker struct {
	mu   sync.Mutex
	held map[string]heldKey
	now  func() time.Time
}

// NewScheduleLocker creates a new ScheduleLocker sharing the store's clock.
func NewScheduleLocker(store *Store) *ScheduleLocker {
	return &ScheduleLocker{held: make(map[string]heldKey), now: store.now}
}

// Acquire holds all keys or none.
func (l *ScheduleLocker) Acquire(_ context.Context, keys []string, ttl time.Duration) (*domain.ScheduleHold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, key := range keys {
		if h, ok := l.held[key]; ok && h.expiresAt.After(now) {
			return nil, domain.ErrScheduleBusy
		}
	}

	hold := &domain.ScheduleHold{Keys: keys, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	for _, key := range keys {
		l.held[key] = heldKey{token: hold.Token, expiresAt: hold.ExpiresAt}
	}
	return hold, nil
}

// Release frees the keys still owned by hold.
func (l *ScheduleLocker) Release(_ context.Context, hold *domain.ScheduleHold) error {
	if hold == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range hold.Keys {
		if h, ok := l.held[key]; ok && h.token == hold.Token {
			delete(l.held, key)
		}
	}
	return nil
}
