package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/iho/timebank/internal/domain"
)

// leaseMode selects the processed-flag guard of a lease acquisition.
type leaseMode int

const (
	leasePlain leaseMode = iota
	// leaseClaimCompletion requires processed=false and sets it.
	leaseClaimCompletion
	// leaseResumeCompletion requires processed=true, for stalled completions.
	leaseResumeCompletion
)

// acquireLease takes the session lease with one conditional write and
// returns the session as seen under the lease. On failure it re-reads the
// session to report why, and returns that snapshot with the error.
func (uc *SessionUseCase) acquireLease(ctx context.Context, sessionID string, from []domain.SessionStatus, ttl time.Duration, mode leaseMode) (string, *domain.Session, error) {
	now := uc.now()
	req := domain.LeaseRequest{
		SessionID:          sessionID,
		Token:              uuid.NewString(),
		From:               from,
		RequireUnprocessed: mode == leaseClaimCompletion,
		RequireProcessed:   mode == leaseResumeCompletion,
		MarkProcessed:      mode == leaseClaimCompletion,
		Now:                now,
		ExpiresAt:          now.Add(ttl),
	}

	err := uc.sessionRepo.AcquireLease(ctx, req)
	if err == nil {
		leased, err := uc.sessionRepo.GetByID(ctx, sessionID)
		if err != nil {
			uc.releaseLease(ctx, sessionID, req.Token, mode == leaseClaimCompletion)
			return "", nil, err
		}
		return req.Token, leased, nil
	}
	if !errors.Is(err, domain.ErrLeaseHeld) {
		return "", nil, err
	}

	current, getErr := uc.sessionRepo.GetByID(ctx, sessionID)
	if getErr != nil {
		return "", nil, getErr
	}

	err = classifyLeaseFailure(current, req)
	if domain.IsConflict(err) {
		uc.recorder.LeaseConflict(string(current.Status))
	}
	return "", current, err
}

// classifyLeaseFailure explains why req could not be applied to s.
func classifyLeaseFailure(s *domain.Session, req domain.LeaseRequest) error {
	if req.RequireUnprocessed && s.Processed {
		return domain.ErrAlreadyProcessed
	}
	if !slices.Contains(req.From, s.Status) {
		return fmt.Errorf("%w: session is %s", domain.ErrInvalidTransition, s.Status)
	}
	if req.RequireProcessed && !s.Processed {
		return domain.ErrConcurrentModification
	}
	if !s.LeaseFree(req.Now) {
		return domain.ErrLeaseHeld
	}
	// The session changed between the write and the read.
	return domain.ErrConcurrentModification
}

// isStalledCompletion reports whether a completion claimed s and then
// abandoned it: processed, not terminal and no live lease.
func isStalledCompletion(s *domain.Session, now time.Time) bool {
	return s != nil && s.Processed && !s.Status.IsTerminal() && s.LeaseFree(now)
}

// releaseLease gives up a lease without changing status. It uses a detached
// context so a cancelled request still frees the session.
func (uc *SessionUseCase) releaseLease(ctx context.Context, sessionID, token string, resetProcessed bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTransactionTimeout)
	defer cancel()

	if err := uc.sessionRepo.ReleaseLease(ctx, sessionID, token, resetProcessed, uc.now()); err != nil {
		uc.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release session lease")
	}
}
