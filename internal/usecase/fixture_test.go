package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/adapter/repository/memory"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// seqIDs yields sortable IDs in generation order.
type seqIDs struct {
	n atomic.Int64
}

func (g *seqIDs) Generate() string {
	return fmt.Sprintf("id-%010d", g.n.Add(1))
}

type fixture struct {
	clock    *fakeClock
	store    *memory.Store
	ids      *seqIDs
	accounts *usecase.AccountUseCase
	ledger   *usecase.LedgerUseCase
	sessions *usecase.SessionUseCase
	rooms    *usecase.RoomUseCase
	recon    *usecase.ReconciliationUseCase

	sessionRepo *memory.SessionRepository
	outboxRepo  *memory.OutboxRepository
	locker      *memory.ScheduleLocker
}

var initialGrant = decimal.NewFromInt(10)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	store := memory.NewStore(memory.WithClock(clock.Now))
	txManager := memory.NewTxManager(store)
	accountRepo := memory.NewAccountRepository(store)
	participantRepo := memory.NewParticipantRepository(store)
	transactionRepo := memory.NewTransactionRepository(store)
	sessionRepo := memory.NewSessionRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)
	locker := memory.NewScheduleLocker(store)
	idGen := &seqIDs{}
	logger := zerolog.Nop()

	ledger, err := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:       txManager,
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		OutboxRepo:      outboxRepo,
		IDGen:           idGen,
		Logger:          logger,
		Now:             clock.Now,
	})
	require.NoError(t, err)

	sessions, err := usecase.NewSessionUseCase(usecase.SessionConfig{
		TxManager:       txManager,
		SessionRepo:     sessionRepo,
		ParticipantRepo: participantRepo,
		AccountRepo:     accountRepo,
		OutboxRepo:      outboxRepo,
		Ledger:          ledger,
		ScheduleLocker:  locker,
		IDGen:           idGen,
		Logger:          logger,
		Now:             clock.Now,
	})
	require.NoError(t, err)

	accounts := usecase.NewAccountUseCase(usecase.AccountConfig{
		TxManager:       txManager,
		AccountRepo:     accountRepo,
		ParticipantRepo: participantRepo,
		OutboxRepo:      outboxRepo,
		Ledger:          ledger,
		IDGen:           idGen,
		Logger:          logger,
		Now:             clock.Now,
		InitialGrant:    initialGrant,
	})

	return &fixture{
		clock:       clock,
		store:       store,
		ids:         idGen,
		accounts:    accounts,
		ledger:      ledger,
		sessions:    sessions,
		rooms:       usecase.NewRoomUseCase(sessions, memory.NewRoomRegistry(store), logger, time.Hour),
		recon:       usecase.NewReconciliationUseCase(memory.NewLedgerRepository(store)),
		sessionRepo: sessionRepo,
		outboxRepo:  outboxRepo,
		locker:      locker,
	}
}

func (f *fixture) register(t *testing.T, name string, rate int64, skills ...string) domain.Caller {
	t.Helper()
	profile, err := f.accounts.Register(context.Background(), usecase.RegisterInput{
		DisplayName: name,
		Skills:      skills,
		HourlyRate:  decimal.NewFromInt(rate),
	})
	require.NoError(t, err)
	return domain.Caller{ID: profile.Participant.ID, Role: domain.RoleParticipant}
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	account, err := f.accounts.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	require.NoError(t, f.recon.CheckLedgerConsistency(context.Background()))
}

// book schedules a one-hour "go" lesson starting an hour from now.
func (f *fixture) book(t *testing.T, teacher, learner domain.Caller) *domain.Session {
	t.Helper()
	session, err := f.sessions.Book(context.Background(), learner, usecase.BookInput{
		TeacherID:       teacher.ID,
		LearnerID:       learner.ID,
		Skill:           "Go",
		ScheduledAt:     f.clock.Now().Add(time.Hour),
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	return session
}

func (f *fixture) bookAndConfirm(t *testing.T, teacher, learner domain.Caller) *domain.Session {
	t.Helper()
	session := f.book(t, teacher, learner)
	confirmed, err := f.sessions.Confirm(context.Background(), teacher, session.ID)
	require.NoError(t, err)
	return confirmed
}

func credits(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
