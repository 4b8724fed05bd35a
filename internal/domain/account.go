package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a participant's time-credit balance.
// Version increases by one on every balance mutation.
type Account struct {
	ID        string
	Balance   decimal.Decimal
	Version   int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateDebit checks the account can be debited by amount without going negative.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if !a.Active {
		return ErrAccountInactive
	}
	if a.Balance.LessThan(amount) {
		return &InsufficientFundsError{AccountID: a.ID, Have: a.Balance, Need: amount}
	}
	return nil
}

// ValidateCredit checks the account can receive credit.
func (a *Account) ValidateCredit() error {
	if !a.Active {
		return ErrAccountInactive
	}
	return nil
}

// ApplyDebit returns new balance after debit.
func (a *Account) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Sub(amount)
}

// ApplyCredit returns new balance after credit.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(amount)
}
