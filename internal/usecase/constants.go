package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// StreamSettleDelay is how old a ledger entry must be before the
	// transaction stream returns it. Every ledger write stamps its entries
	// inside a unit of work bounded by DefaultTransactionTimeout; the rest
	// covers commit latency and clock skew between instances.
	StreamSettleDelay = DefaultTransactionTimeout + 5*time.Second

	// IdempotencyKeyTTL is how long HTTP idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyInFlight is the placeholder stored while the first request
	// carrying a key is still being served.
	IdempotencyInFlight = "processing"

	// Lease and hold defaults used when the configuration leaves them unset.
	DefaultConfirmLease  = 15 * time.Second
	DefaultCompleteLease = 60 * time.Second
	DefaultBookingHold   = 5 * time.Second
	DefaultRoomLeadIn    = 10 * time.Minute
	DefaultRoomTTL       = 4 * time.Hour

	// SystemActor is recorded in status history for transitions not made by a participant.
	SystemActor = "system"

	completionKeyPrefix   = "session-complete-"
	reversalKeyPrefix     = "reversal-"
	initialGrantKeyPrefix = "initial-grant-"
)

// CompletionKey is the ledger idempotency key used when a session completes.
func CompletionKey(sessionID string) string {
	return completionKeyPrefix + sessionID
}
