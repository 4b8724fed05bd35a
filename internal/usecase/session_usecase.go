package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/timebank/internal/domain"
)

// Ledger is the part of LedgerUseCase the session state machine depends on.
type Ledger interface {
	Transfer(ctx context.Context, input TransferInput) (*domain.TransferResult, error)
}

// SessionConfig holds the dependencies and timings of SessionUseCase.
type SessionConfig struct {
	TxManager       TransactionManager
	SessionRepo     SessionRepository
	ParticipantRepo ParticipantRepository
	AccountRepo     AccountRepository
	OutboxRepo      OutboxRepository
	Ledger          Ledger
	ScheduleLocker  ScheduleLocker
	IDGen           IDGenerator
	Recorder        Recorder
	Logger          zerolog.Logger
	Now             func() time.Time

	ConfirmLease  time.Duration
	CompleteLease time.Duration
	BookingHold   time.Duration
	RoomLeadIn    time.Duration
}

// SessionUseCase runs the lesson lifecycle:
// pending -> confirmed -> in_progress -> completed, with cancelled reachable
// from pending and confirmed. Every mutation is guarded by a session lease.
type SessionUseCase struct {
	txManager       TransactionManager
	sessionRepo     SessionRepository
	participantRepo ParticipantRepository
	accountRepo     AccountRepository
	outboxRepo      OutboxRepository
	ledger          Ledger
	locker          ScheduleLocker
	idGen           IDGenerator
	recorder        Recorder
	logger          zerolog.Logger
	now             func() time.Time

	confirmLease  time.Duration
	completeLease time.Duration
	bookingHold   time.Duration
	roomLeadIn    time.Duration
}

// NewSessionUseCase creates a new SessionUseCase.
func NewSessionUseCase(cfg SessionConfig) (*SessionUseCase, error) {
	if cfg.TxManager == nil || !cfg.TxManager.SupportsAtomicCommit() {
		return nil, domain.ErrNonAtomicStore
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SessionUseCase{
		txManager:       cfg.TxManager,
		sessionRepo:     cfg.SessionRepo,
		participantRepo: cfg.ParticipantRepo,
		accountRepo:     cfg.AccountRepo,
		outboxRepo:      cfg.OutboxRepo,
		ledger:          cfg.Ledger,
		locker:          cfg.ScheduleLocker,
		idGen:           cfg.IDGen,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		now:             cfg.Now,
		confirmLease:    durationOr(cfg.ConfirmLease, DefaultConfirmLease),
		completeLease:   durationOr(cfg.CompleteLease, DefaultCompleteLease),
		bookingHold:     durationOr(cfg.BookingHold, DefaultBookingHold),
		roomLeadIn:      durationOr(cfg.RoomLeadIn, DefaultRoomLeadIn),
	}, nil
}

// BookInput represents a booking request.
type BookInput struct {
	TeacherID       string
	LearnerID       string
	Skill           string
	ScheduledAt     time.Time
	DurationMinutes int
}

// Book creates a pending session. No credits move until completion; the
// learner's balance is only checked.
func (uc *SessionUseCase) Book(ctx context.Context, caller domain.Caller, input BookInput) (*domain.Session, error) {
	if !caller.Is(input.LearnerID) {
		return nil, domain.ErrNotAuthorized
	}
	if input.TeacherID == input.LearnerID {
		return nil, domain.ErrSelfBooking
	}

	now := uc.now()
	if err := domain.ValidateSchedule(input.ScheduledAt, input.DurationMinutes, now); err != nil {
		return nil, err
	}

	teacher, err := uc.participantRepo.GetByID(ctx, input.TeacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.Active {
		return nil, domain.ErrAccountInactive
	}
	if !teacher.OffersSkill(input.Skill) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSkillNotOffered, input.Skill)
	}

	learner, err := uc.accountRepo.GetByID(ctx, input.LearnerID)
	if err != nil {
		return nil, err
	}

	cost := domain.CreditCost(input.DurationMinutes, teacher.HourlyRate)
	if err := learner.ValidateDebit(cost); err != nil {
		return nil, err
	}

	hold, err := uc.locker.Acquire(ctx, domain.ScheduleHoldKeys(input.TeacherID, input.LearnerID), uc.bookingHold)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := uc.locker.Release(context.WithoutCancel(ctx), hold); err != nil {
			uc.logger.Warn().Err(err).Msg("failed to release schedule hold")
		}
	}()

	end := input.ScheduledAt.Add(time.Duration(input.DurationMinutes) * time.Minute)
	overlapping, err := uc.sessionRepo.FindOverlapping(ctx,
		[]string{input.TeacherID, input.LearnerID}, input.ScheduledAt, end, domain.ActiveSessionStatuses, "")
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, fmt.Errorf("%w: session %s", domain.ErrScheduleConflict, overlapping[0].ID)
	}

	session := &domain.Session{
		ID:              uc.idGen.Generate(),
		TeacherID:       input.TeacherID,
		LearnerID:       input.LearnerID,
		Skill:           domain.NormalizeSkill(input.Skill),
		ScheduledAt:     input.ScheduledAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		CreditCost:      cost,
		Status:          domain.SessionPending,
		StatusHistory: []domain.StatusChange{
			{To: domain.SessionPending, Actor: caller.ID, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = uc.withTx(ctx, func(tx Transaction) error {
		if err := uc.sessionRepo.Create(ctx, tx, session); err != nil {
			return err
		}
		return uc.enqueueTransition(ctx, tx, session.ID, "", domain.SessionPending, caller.ID, now)
	})
	if err != nil {
		return nil, err
	}

	uc.recorder.SessionTransition(domain.SessionPending)
	uc.logger.Info().
		Str("session_id", session.ID).
		Str("teacher_id", session.TeacherID).
		Str("learner_id", session.LearnerID).
		Str("cost", cost.String()).
		Msg("session booked")

	return session, nil
}

// Confirm moves a pending session to confirmed. Only the teacher may
// confirm; admins are not exempt. If the learner can no longer pay, the
// session is cancelled.
func (uc *SessionUseCase) Confirm(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if caller.ID != session.TeacherID {
		return nil, domain.ErrNotAuthorized
	}

	token, session, err := uc.acquireLease(ctx, sessionID, []domain.SessionStatus{domain.SessionPending}, uc.confirmLease, leasePlain)
	if err != nil {
		return nil, err
	}

	learner, err := uc.accountRepo.GetByID(ctx, session.LearnerID)
	if err != nil {
		uc.releaseLease(ctx, sessionID, token, false)
		return nil, err
	}

	if fundsErr := learner.ValidateDebit(session.CreditCost); fundsErr != nil {
		if !errors.Is(fundsErr, domain.ErrInsufficientFunds) {
			uc.releaseLease(ctx, sessionID, token, false)
			return nil, fundsErr
		}

		now := uc.now()
		err := uc.commit(ctx, session, domain.SessionTransition{
			SessionID:    sessionID,
			Token:        token,
			To:           domain.SessionCancelled,
			Cancellation: &domain.Cancellation{By: SystemActor, Reason: fundsErr.Error(), At: now},
			At:           now,
		}, caller.ID, fundsErr.Error())
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session cancelled: %w", fundsErr)
	}

	// A booking hold can lapse before insert, so a slot is re-checked against
	// sessions that are already confirmed.
	overlapping, err := uc.sessionRepo.FindOverlapping(ctx,
		[]string{session.TeacherID, session.LearnerID}, session.ScheduledAt, session.EndsAt(),
		[]domain.SessionStatus{domain.SessionConfirmed, domain.SessionInProgress}, sessionID)
	if err != nil {
		uc.releaseLease(ctx, sessionID, token, false)
		return nil, err
	}
	if len(overlapping) > 0 {
		uc.releaseLease(ctx, sessionID, token, false)
		return nil, fmt.Errorf("%w: session %s", domain.ErrScheduleConflict, overlapping[0].ID)
	}

	err = uc.commit(ctx, session, domain.SessionTransition{
		SessionID: sessionID,
		Token:     token,
		To:        domain.SessionConfirmed,
		At:        uc.now(),
	}, caller.ID, "")
	if err != nil {
		return nil, err
	}

	return uc.sessionRepo.GetByID(ctx, sessionID)
}

// Cancel moves a pending or confirmed session to cancelled. Either
// participant may cancel. No credits have moved, so the ledger is not involved.
func (uc *SessionUseCase) Cancel(ctx context.Context, caller domain.Caller, sessionID, reason string) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.Is(session.TeacherID) && !caller.Is(session.LearnerID) {
		return nil, domain.ErrNotAuthorized
	}

	token, session, err := uc.acquireLease(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionPending, domain.SessionConfirmed}, uc.confirmLease, leasePlain)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	err = uc.commit(ctx, session, domain.SessionTransition{
		SessionID:    sessionID,
		Token:        token,
		To:           domain.SessionCancelled,
		Cancellation: &domain.Cancellation{By: caller.ID, Reason: reason, At: now},
		At:           now,
	}, caller.ID, reason)
	if err != nil {
		return nil, err
	}

	return uc.sessionRepo.GetByID(ctx, sessionID)
}

// Complete finishes a confirmed or in-progress session and transfers its
// cost from learner to teacher exactly once. Of two concurrent calls only
// one claims the session; the other gets domain.ErrAlreadyProcessed.
func (uc *SessionUseCase) Complete(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.Is(session.TeacherID) && !caller.Is(session.LearnerID) {
		return nil, domain.ErrNotAuthorized
	}

	completable := []domain.SessionStatus{domain.SessionConfirmed, domain.SessionInProgress}
	token, leased, err := uc.acquireLease(ctx, sessionID, completable, uc.completeLease, leaseClaimCompletion)
	if errors.Is(err, domain.ErrAlreadyProcessed) && isStalledCompletion(leased, uc.now()) {
		uc.logger.Warn().Str("session_id", sessionID).Msg("resuming stalled completion")
		token, leased, err = uc.acquireLease(ctx, sessionID, completable, uc.completeLease, leaseResumeCompletion)
	}
	if err != nil {
		return nil, err
	}

	if err := uc.finishCompletion(ctx, caller.ID, leased, token); err != nil {
		return nil, err
	}

	return uc.sessionRepo.GetByID(ctx, sessionID)
}

// finishCompletion runs the transfer for a claimed session and commits the
// completed state. A failed transfer rolls the claim back so the call can be
// retried. Once the transfer has succeeded the claim is never rolled back.
func (uc *SessionUseCase) finishCompletion(ctx context.Context, actor string, session *domain.Session, token string) error {
	result, err := uc.ledger.Transfer(ctx, TransferInput{
		FromAccountID:  session.LearnerID,
		ToAccountID:    session.TeacherID,
		Amount:         session.CreditCost,
		Description:    fmt.Sprintf("session %s (%s)", session.ID, session.Skill),
		IdempotencyKey: CompletionKey(session.ID),
		SessionID:      session.ID,
	})
	if err != nil {
		uc.releaseLease(ctx, session.ID, token, true)
		uc.logger.Warn().Err(err).Str("session_id", session.ID).Msg("completion transfer failed")
		return err
	}

	now := uc.now()
	hours := session.Hours()

	err = uc.withTx(ctx, func(tx Transaction) error {
		change := domain.StatusChange{From: session.Status, To: domain.SessionCompleted, Actor: actor, At: now}
		err := uc.sessionRepo.Transition(ctx, tx, domain.SessionTransition{
			SessionID:  session.ID,
			Token:      token,
			To:         domain.SessionCompleted,
			Change:     &change,
			TransferID: &result.Debit.ID,
			At:         now,
		})
		if err != nil {
			return err
		}

		deltas := map[string]domain.StatsDelta{
			session.TeacherID: {HoursTaught: hours, SessionsTaught: 1},
			session.LearnerID: {HoursLearned: hours, SessionsLearned: 1},
		}
		ids := []string{session.TeacherID, session.LearnerID}
		sort.Strings(ids)
		for _, id := range ids {
			if err := uc.participantRepo.ApplyStats(ctx, tx, id, deltas[id], now); err != nil {
				return err
			}
		}

		return uc.enqueueTransition(ctx, tx, session.ID, session.Status, domain.SessionCompleted, actor, now)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrLeaseLost) {
			// Credits have moved; keep processed set so the completion is resumed.
			uc.releaseLease(ctx, session.ID, token, false)
		}
		return err
	}

	uc.recorder.SessionTransition(domain.SessionCompleted)
	uc.logger.Info().
		Str("session_id", session.ID).
		Str("transfer_id", result.Debit.ID).
		Bool("replayed", result.Replayed).
		Msg("session completed")

	return nil
}

// MarkInProgress handles the room relay's signal that a call started. It is
// accepted only for confirmed sessions inside their scheduled window and is a
// no-op for sessions already in progress. Any other session is rejected with
// ErrOutOfWindow.
func (uc *SessionUseCase) MarkInProgress(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleService && !caller.Is(session.TeacherID) && !caller.Is(session.LearnerID) {
		return nil, domain.ErrNotAuthorized
	}

	switch session.Status {
	case domain.SessionInProgress:
		return session, nil
	case domain.SessionConfirmed:
	default:
		return nil, fmt.Errorf("%w: session is %s", domain.ErrOutOfWindow, session.Status)
	}

	if !session.InWindow(uc.now(), uc.roomLeadIn) {
		return nil, domain.ErrOutOfWindow
	}

	token, session, err := uc.acquireLease(ctx, sessionID, []domain.SessionStatus{domain.SessionConfirmed}, uc.confirmLease, leasePlain)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Cancelled or completed since the read above.
		return nil, fmt.Errorf("%w: %w", domain.ErrOutOfWindow, err)
	}
	if err != nil {
		return nil, err
	}

	err = uc.commit(ctx, session, domain.SessionTransition{
		SessionID: sessionID,
		Token:     token,
		To:        domain.SessionInProgress,
		At:        uc.now(),
	}, caller.ID, "room joined")
	if err != nil {
		return nil, err
	}

	return uc.sessionRepo.GetByID(ctx, sessionID)
}

// AddReviewInput represents a learner's review.
type AddReviewInput struct {
	SessionID string
	Rating    int
	Comment   string
}

// AddReview attaches the learner's rating to a completed session, once, and
// folds it into the teacher's aggregate rating.
func (uc *SessionUseCase) AddReview(ctx context.Context, caller domain.Caller, input AddReviewInput) (*domain.Session, error) {
	if err := domain.ValidateRating(input.Rating, input.Comment); err != nil {
		return nil, err
	}

	session, err := uc.sessionRepo.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if caller.ID != session.LearnerID {
		return nil, domain.ErrNotAuthorized
	}
	if session.Status != domain.SessionCompleted {
		return nil, fmt.Errorf("%w: only completed sessions can be reviewed", domain.ErrInvalidTransition)
	}
	if session.Review != nil {
		return nil, domain.ErrAlreadyReviewed
	}

	now := uc.now()
	err = uc.withTx(ctx, func(tx Transaction) error {
		review := domain.Review{Rating: input.Rating, Comment: input.Comment, At: now}
		if err := uc.sessionRepo.SetReview(ctx, tx, session.ID, review); err != nil {
			return err
		}
		return uc.participantRepo.ApplyStats(ctx, tx, session.TeacherID, domain.StatsDelta{Rating: input.Rating}, now)
	})
	if err != nil {
		return nil, err
	}

	return uc.sessionRepo.GetByID(ctx, session.ID)
}

// Get returns a session visible to caller.
func (uc *SessionUseCase) Get(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.Is(session.TeacherID) && !caller.Is(session.LearnerID) {
		return nil, domain.ErrNotAuthorized
	}
	return session, nil
}

// ListSessionsInput represents input for listing a participant's sessions.
type ListSessionsInput struct {
	ParticipantID string
	Limit         int
	Offset        int
}

// ListByParticipant lists the sessions a participant teaches or attends.
func (uc *SessionUseCase) ListByParticipant(ctx context.Context, caller domain.Caller, input ListSessionsInput) ([]*domain.Session, error) {
	if !caller.Is(input.ParticipantID) {
		return nil, domain.ErrNotAuthorized
	}
	limit, offset := domain.ClampPagination(input.Limit, input.Offset)
	return uc.sessionRepo.ListByParticipant(ctx, input.ParticipantID, limit, offset)
}

// RecoverStalled resumes completions whose holder stopped after claiming the
// session. The transfer key makes a resumed transfer a no-op if it already ran.
func (uc *SessionUseCase) RecoverStalled(ctx context.Context, limit int) (int, error) {
	stalled, err := uc.sessionRepo.ListStalled(ctx, uc.now(), limit)
	if err != nil {
		return 0, err
	}

	completable := []domain.SessionStatus{domain.SessionConfirmed, domain.SessionInProgress}
	recovered := 0
	for _, session := range stalled {
		token, leased, err := uc.acquireLease(ctx, session.ID, completable, uc.completeLease, leaseResumeCompletion)
		if err != nil {
			uc.logger.Debug().Err(err).Str("session_id", session.ID).Msg("stalled session not claimable")
			continue
		}
		if err := uc.finishCompletion(ctx, SystemActor, leased, token); err != nil {
			uc.logger.Error().Err(err).Str("session_id", session.ID).Msg("failed to recover stalled completion")
			continue
		}
		recovered++
	}

	return recovered, nil
}

// commit writes a lease holder's transition together with its history entry
// and outbox event. The lease is released by the write itself.
func (uc *SessionUseCase) commit(ctx context.Context, session *domain.Session, t domain.SessionTransition, actor, reason string) error {
	from := session.Status
	if t.Change == nil {
		t.Change = &domain.StatusChange{From: from, To: t.To, Actor: actor, Reason: reason, At: t.At}
	}

	err := uc.withTx(ctx, func(tx Transaction) error {
		if err := uc.sessionRepo.Transition(ctx, tx, t); err != nil {
			return err
		}
		return uc.enqueueTransition(ctx, tx, t.SessionID, from, t.To, actor, t.At)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrLeaseLost) {
			uc.releaseLease(ctx, t.SessionID, t.Token, false)
		}
		return err
	}

	uc.recorder.SessionTransition(t.To)
	uc.logger.Info().
		Str("session_id", t.SessionID).
		Str("from", string(from)).
		Str("to", string(t.To)).
		Str("actor", actor).
		Msg("session transitioned")

	return nil
}

func (uc *SessionUseCase) enqueueTransition(ctx context.Context, tx Transaction, sessionID string, from, to domain.SessionStatus, actor string, at time.Time) error {
	return uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   sessionID,
		AggregateType: domain.AggregateTypeSession,
		EventType:     domain.EventTypeSessionTransitioned,
		Payload: map[string]any{
			"session_id": sessionID,
			"from":       string(from),
			"to":         string(to),
			"actor":      actor,
		},
		CreatedAt: at,
	})
}

func (uc *SessionUseCase) withTx(ctx context.Context, fn func(tx Transaction) error) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

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

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
