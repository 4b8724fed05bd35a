package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
)

// AccountRepository defines data access for credit accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	// UpdateBalance writes balance and increments the version only if the
	// stored version still equals expectedVersion. Otherwise it returns
	// domain.ErrConcurrentModification.
	UpdateBalance(ctx context.Context, tx Transaction, id string, expectedVersion int64, balance decimal.Decimal, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// ParticipantRepository defines data access for participant profiles.
type ParticipantRepository interface {
	Create(ctx context.Context, tx Transaction, participant *domain.Participant) error
	GetByID(ctx context.Context, id string) (*domain.Participant, error)
	UpdateOffering(ctx context.Context, id string, skills []string, hourlyRate decimal.Decimal, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	ApplyStats(ctx context.Context, tx Transaction, id string, delta domain.StatsDelta, updatedAt time.Time) error
	List(ctx context.Context, limit, offset int) ([]*domain.Participant, error)
}

// TransactionRepository defines data access for ledger entries.
type TransactionRepository interface {
	// Create returns domain.ErrDuplicateIdempotencyKey when the key is taken.
	Create(ctx context.Context, tx Transaction, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	// ListAfter returns the entries of page ordered by creation time, then ID.
	ListAfter(ctx context.Context, page StreamPage) ([]*domain.Transaction, error)
}

// StreamPage selects entries sorting strictly after the cursor
// (AfterTime, AfterID) and created before Before.
type StreamPage struct {
	AfterTime time.Time
	AfterID   string
	Before    time.Time
	Limit     int
}

// LedgerTotals are the figures used to check ledger consistency.
type LedgerTotals struct {
	TotalBalance     decimal.Decimal
	TotalSigned      decimal.Decimal
	UnpairedDebits   int
	NegativeAccounts int
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	CheckConsistency(ctx context.Context) (LedgerTotals, error)
}

// SessionRepository defines data access for sessions.
type SessionRepository interface {
	Create(ctx context.Context, tx Transaction, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// FindOverlapping returns sessions of any of the participants in one of
	// statuses that overlap [start, end), excluding excludeID.
	FindOverlapping(ctx context.Context, participantIDs []string, start, end time.Time, statuses []domain.SessionStatus, excludeID string) ([]*domain.Session, error)
	// AcquireLease is a single conditional write. It returns
	// domain.ErrLeaseHeld when the conditions of req are not met.
	AcquireLease(ctx context.Context, req domain.LeaseRequest) error
	// Transition returns domain.ErrLeaseLost when the lease token no longer matches.
	Transition(ctx context.Context, tx Transaction, t domain.SessionTransition) error
	ReleaseLease(ctx context.Context, sessionID, token string, resetProcessed bool, at time.Time) error
	// SetReview returns domain.ErrAlreadyReviewed unless the session is
	// completed and not yet reviewed.
	SetReview(ctx context.Context, tx Transaction, sessionID string, review domain.Review) error
	ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*domain.Session, error)
	// ListStalled returns processed, non-terminal sessions whose lease expired before now.
	ListStalled(ctx context.Context, now time.Time, limit int) ([]*domain.Session, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
	// SupportsAtomicCommit reports whether all writes of a transaction
	// become visible together or not at all.
	SupportsAtomicCommit() bool
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier retries operations that failed with a transient error.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// ScheduleLocker takes expiring holds on participants' calendars.
type ScheduleLocker interface {
	// Acquire returns domain.ErrScheduleBusy if any key is held.
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (*domain.ScheduleHold, error)
	Release(ctx context.Context, hold *domain.ScheduleHold) error
}

// RoomRegistry tracks who is connected to a session's call room.
type RoomRegistry interface {
	// Join adds participantID to the room, creating it if needed, and
	// reports whether this join created the room.
	Join(ctx context.Context, sessionID, participantID string, ttl time.Duration) (created bool, err error)
	// Leave removes participantID and deletes the room when it becomes empty.
	Leave(ctx context.Context, sessionID, participantID string) (remaining int, err error)
	Members(ctx context.Context, sessionID string) ([]string, error)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Delete releases a key so the request can be retried.
	Delete(ctx context.Context, key string) error
}

// Recorder receives business metrics.
type Recorder interface {
	LedgerOperation(kind string, err error)
	SessionTransition(to domain.SessionStatus)
	LeaseConflict(operation string)
}

type noopRecorder struct{}

func (noopRecorder) LedgerOperation(string, error)          {}
func (noopRecorder) SessionTransition(domain.SessionStatus) {}
func (noopRecorder) LeaseConflict(string)                   {}
