package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

const transactionColumns = `id, account_id, counterparty_id, session_id, kind, amount, balance_before,
	balance_after, status, paired_transaction_id, reverses_transaction_id, idempotency_key, description, created_at`

const idempotencyKeyConstraint = "transactions_idempotency_key_key"

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a ledger entry within a transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	_, err := txDB(tx).Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID,
		t.AccountID,
		t.CounterpartyID,
		t.SessionID,
		string(t.Kind),
		decimalToNumeric(t.Amount),
		decimalToNumeric(t.BalanceBefore),
		decimalToNumeric(t.BalanceAfter),
		string(t.Status),
		t.PairedTransactionID,
		t.ReversesTransactionID,
		t.IdempotencyKey,
		t.Description,
		timeToPgTimestamptz(t.CreatedAt),
	)
	if isUniqueViolation(err, idempotencyKeyConstraint) {
		return domain.ErrDuplicateIdempotencyKey
	}
	return err
}

// GetByID retrieves a ledger entry by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

// GetByIdempotencyKey retrieves the entry that carries key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key)
}

// ListByAccount returns an account's entries, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
}

// ListAfter returns the entries of page ordered by creation time, then ID.
func (r *TransactionRepository) ListAfter(ctx context.Context, page usecase.StreamPage) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE (created_at, id) > ($1, $2) AND created_at < $3
		ORDER BY created_at, id LIMIT $4`,
		page.AfterTime, page.AfterID, page.Before, page.Limit,
	)
}

func (r *TransactionRepository) getOne(ctx context.Context, sql string, arg string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}

	return entries, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                     domain.Transaction
		kind, status          string
		amount, before, after pgtype.Numeric
		createdAt             pgtype.Timestamptz
	)
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.CounterpartyID,
		&t.SessionID,
		&kind,
		&amount,
		&before,
		&after,
		&status,
		&t.PairedTransactionID,
		&t.ReversesTransactionID,
		&t.IdempotencyKey,
		&t.Description,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = domain.TransactionKind(kind)
	t.Status = domain.TransactionStatus(status)
	t.Amount = numericToDecimal(amount)
	t.BalanceBefore = numericToDecimal(before)
	t.BalanceAfter = numericToDecimal(after)
	t.CreatedAt = createdAt.Time
	return &t, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CheckConsistency totals balances and signed entries in one snapshot.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (usecase.LedgerTotals, error) {
	var (
		totals           usecase.LedgerTotals
		balances, signed pgtype.Numeric
	)

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COALESCE(SUM(CASE WHEN kind = 'debit' THEN -amount ELSE amount END), 0) FROM transactions),
			(SELECT COUNT(*) FROM transactions d
				WHERE d.kind = 'debit'
				AND NOT EXISTS (SELECT 1 FROM transactions c WHERE c.id = d.paired_transaction_id)),
			(SELECT COUNT(*) FROM accounts WHERE balance < 0)`,
	).Scan(&balances, &signed, &totals.UnpairedDebits, &totals.NegativeAccounts)
	if err != nil {
		return usecase.LedgerTotals{}, err
	}

	totals.TotalBalance = numericToDecimal(balances)
	totals.TotalSigned = numericToDecimal(signed)
	return totals, nil
}
