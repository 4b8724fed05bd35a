package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Account errors
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is deactivated")
	ErrInsufficientFunds = errors.New("insufficient credits")

	// Ledger errors
	ErrSameAccount             = errors.New("cannot transfer to same account")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidKind             = errors.New("invalid transaction kind")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrAlreadyReversed         = errors.New("transaction already reversed")
	ErrNotReversible           = errors.New("transaction cannot be reversed")
	ErrConcurrentModification  = errors.New("concurrent modification, retry with fresh state")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrNonAtomicStore          = errors.New("store does not support atomic multi-record transactions")

	// Session errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSelfBooking         = errors.New("teacher and learner must be different participants")
	ErrSkillNotOffered     = errors.New("teacher does not offer this skill")
	ErrScheduleConflict    = errors.New("session overlaps an existing session")
	ErrScheduleBusy        = errors.New("schedule is being modified, retry shortly")
	ErrInvalidSchedule     = errors.New("invalid session schedule")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrLeaseHeld           = errors.New("session is locked by another operation")
	ErrLeaseLost           = errors.New("session lease expired before commit")
	ErrAlreadyProcessed    = errors.New("session already processed")
	ErrOutOfWindow         = errors.New("session is outside its scheduled window")
	ErrAlreadyReviewed     = errors.New("session already reviewed")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrNotAuthorized       = errors.New("caller is not allowed to perform this operation")

	// Room errors
	ErrRoomNotFound = errors.New("room not found")
)

// InsufficientFundsError reports the balance shortfall behind ErrInsufficientFunds.
type InsufficientFundsError struct {
	AccountID string
	Have      decimal.Decimal
	Need      decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %s, need %s", formatCredits(e.Have), formatCredits(e.Need))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// formatCredits renders at least one decimal place, so 3 prints as 3.0.
func formatCredits(d decimal.Decimal) string {
	if d.Exponent() >= 0 || d.Equal(d.Truncate(0)) {
		return d.StringFixed(1)
	}
	return d.String()
}

// IsConflict reports whether err is a transient concurrency conflict that
// a caller may retry after re-reading state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLeaseHeld) ||
		errors.Is(err, ErrLeaseLost) ||
		errors.Is(err, ErrScheduleBusy)
}

// IsValidation reports whether err is caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrSelfBooking) ||
		errors.Is(err, ErrInvalidRating) ||
		errors.Is(err, ErrInvalidDisplayName) ||
		errors.Is(err, ErrInvalidHourlyRate) ||
		errors.Is(err, ErrInvalidSkill) ||
		errors.Is(err, ErrAmountTooLarge) ||
		errors.Is(err, ErrAmountTooSmall) ||
		errors.Is(err, ErrInvalidIDFormat)
}

// IsNotFound reports whether err refers to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrRoomNotFound)
}

// IsAuthorization reports whether err denies the caller access.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}
