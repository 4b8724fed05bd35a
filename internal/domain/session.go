package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a booked lesson.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionConfirmed  SessionStatus = "confirmed"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:    {SessionConfirmed, SessionCancelled},
	SessionConfirmed:  {SessionInProgress, SessionCompleted, SessionCancelled},
	SessionInProgress: {SessionCompleted},
}

// ActiveSessionStatuses are the statuses that occupy a participant's schedule.
var ActiveSessionStatuses = []SessionStatus{SessionPending, SessionConfirmed, SessionInProgress}

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session durations.
const (
	MinSessionMinutes  = 15
	MaxSessionMinutes  = 480
	SessionMinuteStep  = 15
	CreditCostDecimals = 2
)

// Session is a booked lesson between a teacher and a learner.
type Session struct {
	ID              string
	TeacherID       string
	LearnerID       string
	Skill           string
	ScheduledAt     time.Time
	DurationMinutes int
	CreditCost      decimal.Decimal
	Status          SessionStatus
	Version         int64
	LeaseExpiresAt  *time.Time
	LeaseToken      *string
	Processed       bool
	TransferID      *string
	StatusHistory   []StatusChange
	Cancellation    *Cancellation
	Review          *Review
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusChange is one entry of a session's append-only history.
type StatusChange struct {
	From   SessionStatus
	To     SessionStatus
	Actor  string
	Reason string
	At     time.Time
}

// Cancellation records who cancelled a session and why.
type Cancellation struct {
	By     string
	Reason string
	At     time.Time
}

// Review is the learner's rating of a completed session.
type Review struct {
	Rating  int
	Comment string
	At      time.Time
}

// EndsAt returns the scheduled end of the session.
func (s *Session) EndsAt() time.Time {
	return s.ScheduledAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the session occupies any part of [start, end).
func (s *Session) Overlaps(start, end time.Time) bool {
	return s.ScheduledAt.Before(end) && start.Before(s.EndsAt())
}

// HasParticipant reports whether id is the teacher or the learner.
func (s *Session) HasParticipant(id string) bool {
	return id == s.TeacherID || id == s.LearnerID
}

// LeaseFree reports whether no unexpired lease is held at now.
func (s *Session) LeaseFree(now time.Time) bool {
	return s.LeaseExpiresAt == nil || !s.LeaseExpiresAt.After(now)
}

// InWindow reports whether now falls within the room window: leadIn before
// the start through the scheduled end.
func (s *Session) InWindow(now time.Time, leadIn time.Duration) bool {
	return !now.Before(s.ScheduledAt.Add(-leadIn)) && !now.After(s.EndsAt())
}

// Hours returns the session length in hours.
func (s *Session) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(s.DurationMinutes)).Div(decimal.NewFromInt(60))
}

// CreditCost computes the price of a session of the given length at rate credits per hour.
func CreditCost(durationMinutes int, hourlyRate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(durationMinutes)).
		Mul(hourlyRate).
		Div(decimal.NewFromInt(60)).
		Round(CreditCostDecimals)
}

// LeaseRequest describes a single conditional lease acquisition on a session.
// The write succeeds only when the session is in one of From, holds no
// unexpired lease at Now and, with RequireUnprocessed, has Processed unset.
type LeaseRequest struct {
	SessionID          string
	Token              string
	From               []SessionStatus
	RequireUnprocessed bool
	RequireProcessed   bool
	MarkProcessed      bool
	Now                time.Time
	ExpiresAt          time.Time
}

// SessionTransition is the commit write of a lease holder. It applies only
// while Token still matches the stored lease token and always releases the lease.
type SessionTransition struct {
	SessionID      string
	Token          string
	To             SessionStatus
	Change         *StatusChange
	Cancellation   *Cancellation
	TransferID     *string
	ResetProcessed bool
	At             time.Time
}
