package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Create stages a ledger entry. The idempotency key is checked at commit.
func (r *TransactionRepository) Create(_ context.Context, tx usecase.Transaction, transaction *domain.Transaction) error {
	t := *transaction
	return stage(tx, func(st *state) error {
		if _, ok := st.transactions[t.ID]; ok {
			return fmt.Errorf("transaction %s already exists", t.ID)
		}
		if t.IdempotencyKey != nil {
			if _, ok := st.keys[*t.IdempotencyKey]; ok {
				return domain.ErrDuplicateIdempotencyKey
			}
			st.keys[*t.IdempotencyKey] = t.ID
		}
		st.transactions[t.ID] = t
		return nil
	})
}

// GetByID retrieves a ledger entry by ID.
func (r *TransactionRepository) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	var (
		t  domain.Transaction
		ok bool
	)
	r.store.read(func(st *state) {
		t, ok = st.transactions[id]
	})
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &t, nil
}

// GetByIdempotencyKey retrieves the entry that carries key.
func (r *TransactionRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	var (
		t  domain.Transaction
		ok bool
	)
	r.store.read(func(st *state) {
		var id string
		if id, ok = st.keys[key]; ok {
			t, ok = st.transactions[id]
		}
	})
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &t, nil
}

// ListByAccount returns an account's entries, newest first.
func (r *TransactionRepository) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	entries := r.filter(func(t *domain.Transaction) bool { return t.AccountID == accountID })
	slices.SortFunc(entries, func(a, b *domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page(entries, limit, offset), nil
}

// ListAfter returns the entries of p ordered by creation time, then ID.
func (r *TransactionRepository) ListAfter(_ context.Context, p usecase.StreamPage) ([]*domain.Transaction, error) {
	entries := r.filter(func(t *domain.Transaction) bool {
		return t.CreatedAt.Before(p.Before) && compareCursor(t.CreatedAt, t.ID, p.AfterTime, p.AfterID) > 0
	})
	slices.SortFunc(entries, func(a, b *domain.Transaction) int {
		return compareCursor(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return page(entries, p.Limit, 0), nil
}

func compareCursor(at time.Time, id string, bt time.Time, bid string) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return strings.Compare(id, bid)
}

func (r *TransactionRepository) filter(keep func(t *domain.Transaction) bool) []*domain.Transaction {
	var entries []*domain.Transaction
	r.store.read(func(st *state) {
		for _, t := range st.transactions {
			if keep(&t) {
				entries = append(entries, &t)
			}
		}
	})
	return entries
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// CheckConsistency totals balances and signed entries.
func (r *LedgerRepository) CheckConsistency(_ context.Context) (usecase.LedgerTotals, error) {
	var totals usecase.LedgerTotals
	r.store.read(func(st *state) {
		for _, a := range st.accounts {
			totals.TotalBalance = totals.TotalBalance.Add(a.Balance)
			if a.Balance.IsNegative() {
				totals.NegativeAccounts++
			}
		}
		for _, t := range st.transactions {
			totals.TotalSigned = totals.TotalSigned.Add(t.SignedAmount())
			if t.Kind != domain.KindDebit {
				continue
			}
			if t.PairedTransactionID == nil {
				totals.UnpairedDebits++
				continue
			}
			if _, ok := st.transactions[*t.PairedTransactionID]; !ok {
				totals.UnpairedDebits++
			}
		}
	})
	return totals, nil
}
