package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// SessionRepository implements usecase.SessionRepository.
type SessionRepository struct {
	store *Store
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(store *Store) *SessionRepository {
	return &SessionRepository{store: store}
}

func cloneSession(s domain.Session) *domain.Session {
	s.StatusHistory = slices.Clone(s.StatusHistory)
	return &s
}

// Create stages a new session.
func (r *SessionRepository) Create(_ context.Context, tx usecase.Transaction, session *domain.Session) error {
	s := *cloneSession(*session)
	return stage(tx, func(st *state) error {
		if _, ok := st.sessions[s.ID]; ok {
			return fmt.Errorf("session %s already exists", s.ID)
		}
		st.sessions[s.ID] = s
		return nil
	})
}

// GetByID retrieves a session by ID.
func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	var (
		s  domain.Session
		ok bool
	)
	r.store.read(func(st *state) {
		s, ok = st.sessions[id]
	})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// FindOverlapping returns the participants' sessions in statuses that overlap [start, end).
func (r *SessionRepository) FindOverlapping(_ context.Context, participantIDs []string, start, end time.Time, statuses []domain.SessionStatus, excludeID string) ([]*domain.Session, error) {
	return r.filter(func(s *domain.Session) bool {
		if s.ID == excludeID || !slices.Contains(statuses, s.Status) || !s.Overlaps(start, end) {
			return false
		}
		return slices.ContainsFunc(participantIDs, s.HasParticipant)
	}, byScheduleAsc), nil
}

// AcquireLease applies req as a single conditional write.
func (r *SessionRepository) AcquireLease(_ context.Context, req domain.LeaseRequest) error {
	return r.store.write(func(st *state) error {
		s, ok := st.sessions[req.SessionID]
		if !ok {
			return domain.ErrSessionNotFound
		}
		if !slices.Contains(req.From, s.Status) || !s.LeaseFree(req.Now) ||
			(req.RequireUnprocessed && s.Processed) || (req.RequireProcessed && !s.Processed) {
			return domain.ErrLeaseHeld
		}

		token, expires := req.Token, req.ExpiresAt
		s.LeaseToken = &token
		s.LeaseExpiresAt = &expires
		if req.MarkProcessed {
			s.Processed = true
		}
		s.Version++
		s.UpdatedAt = req.Now
		st.sessions[s.ID] = s
		return nil
	})
}

// Transition stages a status change made by the holder of t.Token.
func (r *SessionRepository) Transition(_ context.Context, tx usecase.Transaction, t domain.SessionTransition) error {
	return stage(tx, func(st *state) error {
		s, ok := st.sessions[t.SessionID]
		if !ok {
			return domain.ErrSessionNotFound
		}
		if s.LeaseToken == nil || *s.LeaseToken != t.Token {
			return domain.ErrLeaseLost
		}
		if !s.Status.CanTransitionTo(t.To) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, s.Status, t.To)
		}

		s.Status = t.To
		if t.Change != nil {
			s.StatusHistory = append(slices.Clone(s.StatusHistory), *t.Change)
		}
		if t.Cancellation != nil {
			c := *t.Cancellation
			s.Cancellation = &c
		}
		if t.TransferID != nil {
			id := *t.TransferID
			s.TransferID = &id
		}
		if t.ResetProcessed {
			s.Processed = false
		}
		s.LeaseToken = nil
		s.LeaseExpiresAt = nil
		s.Version++
		s.UpdatedAt = t.At
		st.sessions[s.ID] = s
		return nil
	})
}

// ReleaseLease gives up a lease without changing status.
func (r *SessionRepository) ReleaseLease(_ context.Context, sessionID, token string, resetProcessed bool, at time.Time) error {
	return r.store.write(func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok {
			return domain.ErrSessionNotFound
		}
		if s.LeaseToken == nil || *s.LeaseToken != token {
			return domain.ErrLeaseLost
		}
		s.LeaseToken = nil
		s.LeaseExpiresAt = nil
		if resetProcessed {
			s.Processed = false
		}
		s.Version++
		s.UpdatedAt = at
		st.sessions[s.ID] = s
		return nil
	})
}

// SetReview stages the review of a completed session.
func (r *SessionRepository) SetReview(_ context.Context, tx usecase.Transaction, sessionID string, review domain.Review) error {
	return stage(tx, func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok {
			return domain.ErrSessionNotFound
		}
		if s.Status != domain.SessionCompleted || s.Review != nil {
			return domain.ErrAlreadyReviewed
		}
		s.Review = &review
		s.Version++
		s.UpdatedAt = review.At
		st.sessions[s.ID] = s
		return nil
	})
}

// ListByParticipant returns sessions the participant teaches or attends, latest first.
func (r *SessionRepository) ListByParticipant(_ context.Context, participantID string, limit, offset int) ([]*domain.Session, error) {
	sessions := r.filter(func(s *domain.Session) bool {
		return s.HasParticipant(participantID)
	}, byScheduleDesc)
	return page(sessions, limit, offset), nil
}

// ListStalled returns processed, non-terminal sessions whose lease expired.
func (r *SessionRepository) ListStalled(_ context.Context, now time.Time, limit int) ([]*domain.Session, error) {
	sessions := r.filter(func(s *domain.Session) bool {
		return s.Processed && !s.Status.IsTerminal() && s.LeaseFree(now)
	}, byScheduleAsc)
	return page(sessions, limit, 0), nil
}

func (r *SessionRepository) filter(keep func(s *domain.Session) bool, cmp func(a, b *domain.Session) int) []*domain.Session {
	var sessions []*domain.Session
	r.store.read(func(st *state) {
		for _, s := range st.sessions {
			if keep(&s) {
				sessions = append(sessions, cloneSession(s))
			}
		}
	})
	slices.SortFunc(sessions, cmp)
	return sessions
}

func byScheduleAsc(a, b *domain.Session) int {
	if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func byScheduleDesc(a, b *domain.Session) int {
	return byScheduleAsc(b, a)
}
