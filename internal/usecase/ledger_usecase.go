package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
)

// LedgerConfig holds the dependencies of LedgerUseCase.
type LedgerConfig struct {
	TxManager       TransactionManager
	AccountRepo     AccountRepository
	TransactionRepo TransactionRepository
	OutboxRepo      OutboxRepository
	IDGen           IDGenerator
	Recorder        Recorder
	Logger          zerolog.Logger
	Now             func() time.Time
	// StreamDelay is how old an entry must be before Stream returns it.
	// Defaults to StreamSettleDelay.
	StreamDelay time.Duration
}

// LedgerUseCase moves credits between accounts. It is the only writer of
// account balances and ledger entries.
type LedgerUseCase struct {
	txManager       TransactionManager
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	outboxRepo      OutboxRepository
	idGen           IDGenerator
	recorder        Recorder
	logger          zerolog.Logger
	now             func() time.Time
	streamDelay     time.Duration
}

// NewLedgerUseCase creates a new LedgerUseCase. It refuses stores that
// cannot commit several records atomically.
func NewLedgerUseCase(cfg LedgerConfig) (*LedgerUseCase, error) {
	if cfg.TxManager == nil || !cfg.TxManager.SupportsAtomicCommit() {
		return nil, domain.ErrNonAtomicStore
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StreamDelay <= 0 {
		cfg.StreamDelay = StreamSettleDelay
	}

	return &LedgerUseCase{
		txManager:       cfg.TxManager,
		accountRepo:     cfg.AccountRepo,
		transactionRepo: cfg.TransactionRepo,
		outboxRepo:      cfg.OutboxRepo,
		idGen:           cfg.IDGen,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		now:             cfg.Now,
		streamDelay:     cfg.StreamDelay,
	}, nil
}

// TransferInput represents input for a transfer between two accounts.
type TransferInput struct {
	FromAccountID  string
	ToAccountID    string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	SessionID      string
}

// CreditInput represents input for a single-sided credit.
type CreditInput struct {
	AccountID      string
	Amount         decimal.Decimal
	Kind           domain.TransactionKind
	Description    string
	IdempotencyKey string
}

// ReverseInput represents input for reversing a transfer.
type ReverseInput struct {
	TransactionID string
	Reason        string
}

type transferOptions struct {
	creditKind domain.TransactionKind
	reverses   *string
}

// Transfer moves amount from one account to another. Both balances and both
// entries are written in one unit of work or not at all.
func (uc *LedgerUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.TransferResult, error) {
	result, err := uc.transfer(ctx, input, transferOptions{creditKind: domain.KindCredit})
	uc.recorder.LedgerOperation("transfer", err)
	return result, err
}

func (uc *LedgerUseCase) transfer(ctx context.Context, input TransferInput, opts transferOptions) (*domain.TransferResult, error) {
	if input.FromAccountID == input.ToAccountID {
		return nil, domain.ErrSameAccount
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		prior, err := uc.findTransfer(ctx, input)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}

	result, err := uc.executeTransfer(ctx, input, opts)
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key committed first.
		return uc.findTransfer(ctx, input)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			uc.recordRejected(ctx, input)
		}
		return nil, err
	}

	uc.logger.Info().
		Str("debit_id", result.Debit.ID).
		Str("credit_id", result.Credit.ID).
		Str("from", input.FromAccountID).
		Str("to", input.ToAccountID).
		Str("amount", input.Amount.String()).
		Msg("transfer committed")

	return result, nil
}

func (uc *LedgerUseCase) executeTransfer(ctx context.Context, input TransferInput, opts transferOptions) (*domain.TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Sorted order keeps row-lock acquisition consistent between concurrent writers.
	accountIDs := []string{input.FromAccountID, input.ToAccountID}
	sort.Strings(accountIDs)

	accounts := make(map[string]*domain.Account, 2)
	for _, id := range accountIDs {
		account, err := uc.accountRepo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}

	from := accounts[input.FromAccountID]
	to := accounts[input.ToAccountID]

	if err := from.ValidateDebit(input.Amount); err != nil {
		return nil, err
	}
	if err := to.ValidateCredit(); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	debitID := uc.idGen.Generate()
	creditID := uc.idGen.Generate()

	debit := &domain.Transaction{
		ID:                    debitID,
		AccountID:             from.ID,
		CounterpartyID:        strPtr(to.ID),
		SessionID:             optionalStr(input.SessionID),
		Kind:                  domain.KindDebit,
		Amount:                input.Amount,
		BalanceBefore:         from.Balance,
		BalanceAfter:          from.ApplyDebit(input.Amount),
		Status:                domain.TransactionCompleted,
		PairedTransactionID:   strPtr(creditID),
		ReversesTransactionID: opts.reverses,
		IdempotencyKey:        optionalStr(input.IdempotencyKey),
		Description:           input.Description,
		CreatedAt:             now,
	}
	credit := &domain.Transaction{
		ID:                    creditID,
		AccountID:             to.ID,
		CounterpartyID:        strPtr(from.ID),
		SessionID:             optionalStr(input.SessionID),
		Kind:                  opts.creditKind,
		Amount:                input.Amount,
		BalanceBefore:         to.Balance,
		BalanceAfter:          to.ApplyCredit(input.Amount),
		Status:                domain.TransactionCompleted,
		PairedTransactionID:   strPtr(debitID),
		ReversesTransactionID: opts.reverses,
		Description:           input.Description,
		CreatedAt:             now,
	}

	for _, entry := range []*domain.Transaction{debit, credit} {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}

	for _, id := range accountIDs {
		account := accounts[id]
		newBalance := debit.BalanceAfter
		if id == to.ID {
			newBalance = credit.BalanceAfter
		}
		if err := uc.accountRepo.UpdateBalance(ctx, tx, id, account.Version, newBalance, now); err != nil {
			return nil, err
		}
	}

	for _, entry := range []*domain.Transaction{debit, credit} {
		if err := uc.transactionRepo.Create(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err := uc.enqueue(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.TransferResult{Debit: debit, Credit: credit}, nil
}

// findTransfer returns the transfer previously committed under input's key.
func (uc *LedgerUseCase) findTransfer(ctx context.Context, input TransferInput) (*domain.TransferResult, error) {
	debit, err := uc.transactionRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if debit.Kind != domain.KindDebit || debit.PairedTransactionID == nil ||
		debit.AccountID != input.FromAccountID || !debit.Amount.Equal(input.Amount) ||
		debit.CounterpartyID == nil || *debit.CounterpartyID != input.ToAccountID {
		return nil, fmt.Errorf("%w: %s was used for a different operation", domain.ErrDuplicateIdempotencyKey, input.IdempotencyKey)
	}

	credit, err := uc.transactionRepo.GetByID(ctx, *debit.PairedTransactionID)
	if err != nil {
		return nil, err
	}

	return &domain.TransferResult{Debit: debit, Credit: credit, Replayed: true}, nil
}

// Credit adds amount to a single account. It is the only operation that
// changes the total credits in circulation.
func (uc *LedgerUseCase) Credit(ctx context.Context, input CreditInput) (*domain.Transaction, error) {
	entry, err := uc.credit(ctx, input)
	uc.recorder.LedgerOperation(string(input.Kind), err)
	return entry, err
}

func (uc *LedgerUseCase) credit(ctx context.Context, input CreditInput) (*domain.Transaction, error) {
	if !input.Kind.IsMint() {
		return nil, domain.ErrInvalidKind
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		prior, err := uc.findCredit(ctx, input)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}

	entry, err := uc.executeCredit(ctx, input)
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		return uc.findCredit(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("transaction_id", entry.ID).
		Str("account_id", entry.AccountID).
		Str("kind", string(entry.Kind)).
		Str("amount", entry.Amount.String()).
		Msg("credit committed")

	return entry, nil
}

func (uc *LedgerUseCase) executeCredit(ctx context.Context, input CreditInput) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := uc.accountRepo.GetByIDTx(ctx, tx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if err := account.ValidateCredit(); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	entry := &domain.Transaction{
		ID:             uc.idGen.Generate(),
		AccountID:      account.ID,
		Kind:           input.Kind,
		Amount:         input.Amount,
		BalanceBefore:  account.Balance,
		BalanceAfter:   account.ApplyCredit(input.Amount),
		Status:         domain.TransactionCompleted,
		IdempotencyKey: optionalStr(input.IdempotencyKey),
		Description:    input.Description,
		CreatedAt:      now,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	if err := uc.accountRepo.UpdateBalance(ctx, tx, account.ID, account.Version, entry.BalanceAfter, now); err != nil {
		return nil, err
	}
	if err := uc.transactionRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := uc.enqueue(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return entry, nil
}

func (uc *LedgerUseCase) findCredit(ctx context.Context, input CreditInput) (*domain.Transaction, error) {
	prior, err := uc.transactionRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if prior.AccountID != input.AccountID || prior.Kind != input.Kind || !prior.Amount.Equal(input.Amount) {
		return nil, fmt.Errorf("%w: %s was used for a different operation", domain.ErrDuplicateIdempotencyKey, input.IdempotencyKey)
	}
	return prior, nil
}

// Reverse books the opposite of a committed transfer. Only administrators
// may reverse, and each transfer can be reversed once.
func (uc *LedgerUseCase) Reverse(ctx context.Context, caller domain.Caller, input ReverseInput) (*domain.TransferResult, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrNotAuthorized
	}

	original, err := uc.transactionRepo.GetByID(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if original.PairedTransactionID == nil || original.ReversesTransactionID != nil {
		return nil, domain.ErrNotReversible
	}

	debit := original
	if original.Kind != domain.KindDebit {
		debit, err = uc.transactionRepo.GetByID(ctx, *original.PairedTransactionID)
		if err != nil {
			return nil, err
		}
	}

	description := "reversal of " + debit.ID
	if input.Reason != "" {
		description += ": " + input.Reason
	}

	result, err := uc.transfer(ctx, TransferInput{
		FromAccountID:  *debit.CounterpartyID,
		ToAccountID:    debit.AccountID,
		Amount:         debit.Amount,
		Description:    description,
		IdempotencyKey: reversalKeyPrefix + debit.ID,
	}, transferOptions{creditKind: domain.KindRefund, reverses: strPtr(debit.ID)})
	uc.recorder.LedgerOperation("reversal", err)
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return nil, domain.ErrAlreadyReversed
	}

	uc.logger.Warn().
		Str("original_id", debit.ID).
		Str("reversal_id", result.Debit.ID).
		Str("admin", caller.ID).
		Msg("transfer reversed")

	return result, nil
}

// GetTransaction returns a ledger entry. Entries of a reversed transfer are
// reported with status reversed.
func (uc *LedgerUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	entry, err := uc.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.PairedTransactionID == nil || entry.ReversesTransactionID != nil {
		return entry, nil
	}

	debitID := entry.ID
	if entry.Kind != domain.KindDebit {
		debitID = *entry.PairedTransactionID
	}

	_, err = uc.transactionRepo.GetByIdempotencyKey(ctx, reversalKeyPrefix+debitID)
	switch {
	case err == nil:
		entry.Status = domain.TransactionReversed
	case !errors.Is(err, domain.ErrTransactionNotFound):
		return nil, err
	}

	return entry, nil
}

// ListTransactionsInput represents input for listing an account's entries.
type ListTransactionsInput struct {
	AccountID string
	Limit     int
	Offset    int
}

// ListTransactions lists the entries of an account, newest first.
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, input ListTransactionsInput) ([]*domain.Transaction, error) {
	limit, offset := domain.ClampPagination(input.Limit, input.Offset)
	if _, err := uc.accountRepo.GetByID(ctx, input.AccountID); err != nil {
		return nil, err
	}
	return uc.transactionRepo.ListByAccount(ctx, input.AccountID, limit, offset)
}

// Stream returns committed entries after the given cursor, ordered by
// creation time and ID. It is the read-only feed consumed by the fraud risk
// advisor. Entries younger than the stream delay are held back: a unit of
// work still running could commit an entry that sorts before them, and a
// client that had already moved its cursor past that point would never see it.
func (uc *LedgerUseCase) Stream(ctx context.Context, afterID string, limit int) ([]domain.TransactionStreamEvent, error) {
	limit, _ = domain.ClampPagination(limit, 0)
	page := StreamPage{
		AfterID: afterID,
		Before:  uc.now().UTC().Add(-uc.streamDelay),
		Limit:   limit,
	}
	if afterID != "" {
		cursor, err := uc.transactionRepo.GetByID(ctx, afterID)
		if err != nil {
			return nil, err
		}
		page.AfterTime = cursor.CreatedAt
	}

	entries, err := uc.transactionRepo.ListAfter(ctx, page)
	if err != nil {
		return nil, err
	}

	events := make([]domain.TransactionStreamEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, domain.NewTransactionStreamEvent(entry))
	}
	return events, nil
}

func (uc *LedgerUseCase) enqueue(ctx context.Context, tx Transaction, entry *domain.Transaction) error {
	return uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   entry.ID,
		AggregateType: domain.AggregateTypeTransaction,
		EventType:     domain.EventTypeTransactionCompleted,
		Payload:       domain.NewTransactionStreamEvent(entry).Payload(),
		CreatedAt:     entry.CreatedAt,
	})
}

// recordRejected publishes a failed attempt so the risk advisor sees
// rejected transfers too. Errors are logged and otherwise ignored.
func (uc *LedgerUseCase) recordRejected(ctx context.Context, input TransferInput) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTransactionTimeout)
	defer cancel()

	now := uc.now().UTC()
	event := domain.TransactionStreamEvent{
		AccountID:      input.FromAccountID,
		CounterpartyID: input.ToAccountID,
		Amount:         input.Amount.Neg().String(),
		Kind:           string(domain.KindDebit),
		Status:         string(domain.TransactionFailed),
		Timestamp:      now.Format(time.RFC3339Nano),
	}

	err := uc.withTx(ctx, func(tx Transaction) error {
		return uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   input.FromAccountID,
			AggregateType: domain.AggregateTypeTransaction,
			EventType:     domain.EventTypeTransactionRejected,
			Payload:       event.Payload(),
			CreatedAt:     now,
		})
	})
	if err != nil {
		uc.logger.Error().Err(err).Str("account_id", input.FromAccountID).Msg("failed to record rejected transfer")
	}
}

func (uc *LedgerUseCase) withTx(ctx context.Context, fn func(tx Transaction) error) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func strPtr(s string) *string {
	return &s
}

func optionalStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
