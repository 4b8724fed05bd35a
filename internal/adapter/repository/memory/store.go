// Package memory is a single-process store for development and tests. Writes
// staged in a transaction are validated and applied together at commit under
// one lock, so commits are atomic and conditional writes behave like their
// SQL counterparts.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

type state struct {
	accounts     map[string]domain.Account
	participants map[string]domain.Participant
	transactions map[string]domain.Transaction
	keys         map[string]string
	sessions     map[string]domain.Session
	outbox       map[string]domain.OutboxEvent
	outboxOrder  []string
}

func newState() *state {
	return &state{
		accounts:     make(map[string]domain.Account),
		participants: make(map[string]domain.Participant),
		transactions: make(map[string]domain.Transaction),
		keys:         make(map[string]string),
		sessions:     make(map[string]domain.Session),
		outbox:       make(map[string]domain.OutboxEvent),
	}
}

// clone copies the maps. Stored values are replaced, never mutated in
// place, so sharing them between generations is safe.
func (s *state) clone() *state {
	return &state{
		accounts:     maps.Clone(s.accounts),
		participants: maps.Clone(s.participants),
		transactions: maps.Clone(s.transactions),
		keys:         maps.Clone(s.keys),
		sessions:     maps.Clone(s.sessions),
		outbox:       maps.Clone(s.outbox),
		outboxOrder:  slices.Clone(s.outboxOrder),
	}
}

// Store holds all records of the memory driver.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for hold and room expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// write applies fn to the committed state immediately.
func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.st = next
	return nil
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

// SupportsAtomicCommit is true: Commit applies all staged writes or none.
func (m *TxManager) SupportsAtomicCommit() bool {
	return true
}

// Tx collects writes until Commit.
type Tx struct {
	store *Store
	ops   []func(st *state) error
	done  bool
}

// Commit validates and applies every staged write under the store lock.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("memory: transaction already closed")
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.store.write(func(st *state) error {
		for _, op := range t.ops {
			if err := op(st); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rollback discards staged writes. It is a no-op after Commit.
func (t *Tx) Rollback(context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}

func stage(tx usecase.Transaction, op func(st *state) error) error {
	t, ok := tx.(*Tx)
	if !ok {
		return errForeignTx
	}
	if t.done {
		return errors.New("memory: transaction already closed")
	}
	t.ops = append(t.ops, op)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
