package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tx      Transaction
		wantErr error
	}{
		{
			name: "valid debit",
			tx: Transaction{
				Kind:          KindDebit,
				Amount:        decimal.NewFromInt(4),
				BalanceBefore: decimal.NewFromInt(5),
				BalanceAfter:  decimal.NewFromInt(1),
			},
		},
		{
			name: "valid initial grant",
			tx: Transaction{
				Kind:          KindInitialGrant,
				Amount:        decimal.NewFromInt(5),
				BalanceBefore: decimal.Zero,
				BalanceAfter:  decimal.NewFromInt(5),
			},
		},
		{
			name: "debit arithmetic mismatch",
			tx: Transaction{
				Kind:          KindDebit,
				Amount:        decimal.NewFromInt(4),
				BalanceBefore: decimal.NewFromInt(5),
				BalanceAfter:  decimal.NewFromInt(9),
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "debit below zero",
			tx: Transaction{
				Kind:          KindDebit,
				Amount:        decimal.NewFromInt(4),
				BalanceBefore: decimal.NewFromInt(1),
				BalanceAfter:  decimal.NewFromInt(-3),
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "zero amount",
			tx: Transaction{
				Kind:   KindBonus,
				Amount: decimal.Zero,
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown kind",
			tx:      Transaction{Kind: "gift", Amount: decimal.NewFromInt(1)},
			wantErr: ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransactionKind(t *testing.T) {
	if KindDebit.IsMint() {
		t.Error("debit must not mint credit")
	}
	for _, k := range []TransactionKind{KindCredit, KindInitialGrant, KindRefund, KindBonus} {
		if !k.IsMint() {
			t.Errorf("%s should be usable for credit", k)
		}
	}
	if TransactionKind("withdrawal").IsValid() {
		t.Error("unexpected valid kind")
	}
}
