package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccount_ValidateDebit(t *testing.T) {
	tests := []struct {
		name        string
		balance     decimal.Decimal
		debitAmount decimal.Decimal
		active      bool
		expectError error
	}{
		{
			name:        "debit more than balance",
			balance:     decimal.NewFromInt(3),
			debitAmount: decimal.NewFromInt(4),
			active:      true,
			expectError: ErrInsufficientFunds,
		},
		{
			name:        "debit exact balance",
			balance:     decimal.NewFromInt(4),
			debitAmount: decimal.NewFromInt(4),
			active:      true,
		},
		{
			name:        "debit less than balance",
			balance:     decimal.NewFromInt(5),
			debitAmount: decimal.NewFromFloat(1.5),
			active:      true,
		},
		{
			name:        "inactive account",
			balance:     decimal.NewFromInt(5),
			debitAmount: decimal.NewFromInt(1),
			active:      false,
			expectError: ErrAccountInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{ID: "acc-1", Balance: tt.balance, Active: tt.active}

			err := acc.ValidateDebit(tt.debitAmount)
			if tt.expectError == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.expectError != nil && !errors.Is(err, tt.expectError) {
				t.Fatalf("expected %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestInsufficientFundsError_Message(t *testing.T) {
	acc := &Account{ID: "acc-1", Balance: decimal.NewFromInt(3), Active: true}

	err := acc.ValidateDebit(decimal.NewFromInt(4))

	var fundsErr *InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("expected InsufficientFundsError, got %T", err)
	}
	if got, want := err.Error(), "insufficient credits: have 3.0, need 4.0"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	fractional := &InsufficientFundsError{Have: decimal.RequireFromString("1.25"), Need: decimal.RequireFromString("2.5")}
	if got, want := fractional.Error(), "insufficient credits: have 1.25, need 2.5"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAccount_ApplyDebitCredit(t *testing.T) {
	acc := &Account{Balance: decimal.NewFromInt(10)}

	if got := acc.ApplyDebit(decimal.NewFromInt(4)); !got.Equal(decimal.NewFromInt(6)) {
		t.Errorf("ApplyDebit = %s, want 6", got)
	}
	if got := acc.ApplyCredit(decimal.NewFromInt(4)); !got.Equal(decimal.NewFromInt(14)) {
		t.Errorf("ApplyCredit = %s, want 14", got)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsConflict(ErrConcurrentModification) || !IsConflict(ErrLeaseHeld) {
		t.Error("expected concurrency errors to be conflicts")
	}
	if IsConflict(ErrAlreadyProcessed) {
		t.Error("already processed is terminal, not retryable")
	}
	if !IsValidation(ErrSelfBooking) || !IsValidation(ErrInvalidAmount) {
		t.Error("expected validation errors")
	}
	if !IsNotFound(ErrSessionNotFound) || IsNotFound(ErrNotAuthorized) {
		t.Error("unexpected not-found classification")
	}
}
