package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindCredit       TransactionKind = "credit"
	KindDebit        TransactionKind = "debit"
	KindInitialGrant TransactionKind = "initial-grant"
	KindRefund       TransactionKind = "refund"
	KindBonus        TransactionKind = "bonus"
)

// IsValid reports whether k is a known kind.
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindCredit, KindDebit, KindInitialGrant, KindRefund, KindBonus:
		return true
	}
	return false
}

// IsMint reports whether k may be used for a single-sided credit that
// increases the credits in circulation.
func (k TransactionKind) IsMint() bool {
	switch k {
	case KindCredit, KindInitialGrant, KindRefund, KindBonus:
		return true
	}
	return false
}

// TransactionStatus is the outcome recorded for a ledger entry.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionReversed  TransactionStatus = "reversed"
)

// Transaction is one immutable ledger entry against a single account.
// A transfer writes two of them, paired through PairedTransactionID.
type Transaction struct {
	ID                    string
	AccountID             string
	CounterpartyID        *string
	SessionID             *string
	Kind                  TransactionKind
	Amount                decimal.Decimal
	BalanceBefore         decimal.Decimal
	BalanceAfter          decimal.Decimal
	Status                TransactionStatus
	PairedTransactionID   *string
	ReversesTransactionID *string
	IdempotencyKey        *string
	Description           string
	CreatedAt             time.Time
}

// SignedAmount returns the amount as it affects the account balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Validate checks the balance arithmetic of the entry.
func (t *Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.BalanceBefore.Add(t.SignedAmount()).Equal(t.BalanceAfter) {
		return ErrInvalidAmount
	}
	if t.BalanceAfter.IsNegative() {
		return &InsufficientFundsError{AccountID: t.AccountID, Have: t.BalanceBefore, Need: t.Amount}
	}
	return nil
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Debit  *Transaction
	Credit *Transaction
	// Replayed is set when the result was returned for a repeated idempotency key.
	Replayed bool
}
