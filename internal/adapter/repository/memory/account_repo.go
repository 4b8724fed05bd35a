package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// Create stages a new account.
func (r *AccountRepository) Create(_ context.Context, tx usecase.Transaction, account *domain.Account) error {
	a := *account
	return stage(tx, func(st *state) error {
		if _, ok := st.accounts[a.ID]; ok {
			return fmt.Errorf("account %s already exists", a.ID)
		}
		st.accounts[a.ID] = a
		return nil
	})
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	var (
		a  domain.Account
		ok bool
	)
	r.store.read(func(st *state) {
		a, ok = st.accounts[id]
	})
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

// GetByIDTx reads the committed account. The version it carries is checked
// again when the transaction commits.
func (r *AccountRepository) GetByIDTx(ctx context.Context, _ usecase.Transaction, id string) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

// UpdateBalance stages a balance write conditioned on expectedVersion.
func (r *AccountRepository) UpdateBalance(_ context.Context, tx usecase.Transaction, id string, expectedVersion int64, balance decimal.Decimal, updatedAt time.Time) error {
	return stage(tx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if a.Version != expectedVersion {
			return domain.ErrConcurrentModification
		}
		a.Balance = balance
		a.Version++
		a.UpdatedAt = updatedAt
		st.accounts[id] = a
		return nil
	})
}

// SetActive opens or closes an account.
func (r *AccountRepository) SetActive(_ context.Context, id string, active bool, updatedAt time.Time) error {
	return r.store.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.Active = active
		a.Version++
		a.UpdatedAt = updatedAt
		st.accounts[id] = a
		return nil
	})
}

// List returns accounts ordered by ID.
func (r *AccountRepository) List(_ context.Context, limit, offset int) ([]*domain.Account, error) {
	var accounts []*domain.Account
	r.store.read(func(st *state) {
		accounts = make([]*domain.Account, 0, len(st.accounts))
		for _, a := range st.accounts {
			accounts = append(accounts, &a)
		}
	})
	slices.SortFunc(accounts, func(a, b *domain.Account) int {
		return strings.Compare(a.ID, b.ID)
	})
	return page(accounts, limit, offset), nil
}
