package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

const sessionColumns = `id, teacher_id, learner_id, skill, scheduled_at, duration_minutes, credit_cost, status,
	version, lease_token, lease_expires_at, processed, transfer_id, cancelled_by, cancel_reason, cancelled_at,
	review_rating, review_comment, reviewed_at, created_at, updated_at`

// SessionRepository implements usecase.SessionRepository.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session and its initial history within a transaction.
func (r *SessionRepository) Create(ctx context.Context, tx usecase.Transaction, s *domain.Session) error {
	db := txDB(tx)

	_, err := db.Exec(ctx,
		`INSERT INTO sessions (id, teacher_id, learner_id, skill, scheduled_at, ends_at, duration_minutes,
			credit_cost, status, version, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID,
		s.TeacherID,
		s.LearnerID,
		s.Skill,
		timeToPgTimestamptz(s.ScheduledAt),
		timeToPgTimestamptz(s.EndsAt()),
		s.DurationMinutes,
		decimalToNumeric(s.CreditCost),
		string(s.Status),
		s.Version,
		s.Processed,
		timeToPgTimestamptz(s.CreatedAt),
		timeToPgTimestamptz(s.UpdatedAt),
	)
	if err != nil {
		return err
	}

	for _, change := range s.StatusHistory {
		if err := insertHistory(ctx, db, s.ID, change); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a session with its status history.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	if err := r.loadHistory(ctx, []*domain.Session{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// FindOverlapping returns the participants' sessions in statuses that
// overlap [start, end). History is not loaded.
func (r *SessionRepository) FindOverlapping(ctx context.Context, participantIDs []string, start, end time.Time, statuses []domain.SessionStatus, excludeID string) ([]*domain.Session, error) {
	return r.list(ctx, false,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE (teacher_id = ANY($1) OR learner_id = ANY($1))
			AND status = ANY($2)
			AND scheduled_at < $4 AND ends_at > $3
			AND id <> $5
		ORDER BY scheduled_at, id`,
		participantIDs, statusStrings(statuses), timeToPgTimestamptz(start), timeToPgTimestamptz(end), excludeID,
	)
}

// AcquireLease applies req as a single conditional UPDATE.
func (r *SessionRepository) AcquireLease(ctx context.Context, req domain.LeaseRequest) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET
			lease_token = $2,
			lease_expires_at = $3,
			processed = processed OR $4,
			version = version + 1,
			updated_at = $5
		WHERE id = $1
			AND status = ANY($6)
			AND (lease_expires_at IS NULL OR lease_expires_at <= $5)
			AND (NOT $7 OR NOT processed)
			AND (NOT $8 OR processed)`,
		req.SessionID,
		req.Token,
		timeToPgTimestamptz(req.ExpiresAt),
		req.MarkProcessed,
		timeToPgTimestamptz(req.Now),
		statusStrings(req.From),
		req.RequireUnprocessed,
		req.RequireProcessed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

// Transition writes a status change conditioned on the lease token.
func (r *SessionRepository) Transition(ctx context.Context, tx usecase.Transaction, t domain.SessionTransition) error {
	db := txDB(tx)

	var cancelledBy, cancelReason *string
	var cancelledAt pgtype.Timestamptz
	if t.Cancellation != nil {
		cancelledBy = &t.Cancellation.By
		cancelReason = &t.Cancellation.Reason
		cancelledAt = timeToPgTimestamptz(t.Cancellation.At)
	}

	tag, err := db.Exec(ctx,
		`UPDATE sessions SET
			status = $3,
			lease_token = NULL,
			lease_expires_at = NULL,
			processed = processed AND NOT $4,
			transfer_id = COALESCE($5, transfer_id),
			cancelled_by = COALESCE($6, cancelled_by),
			cancel_reason = COALESCE($7, cancel_reason),
			cancelled_at = COALESCE($8, cancelled_at),
			version = version + 1,
			updated_at = $9
		WHERE id = $1 AND lease_token = $2 AND status = ANY($10)`,
		t.SessionID,
		t.Token,
		string(t.To),
		t.ResetProcessed,
		t.TransferID,
		cancelledBy,
		cancelReason,
		cancelledAt,
		timeToPgTimestamptz(t.At),
		statusStrings(sourcesOf(t.To)),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainRejectedTransition(ctx, db, t)
	}

	if t.Change != nil {
		return insertHistory(ctx, db, t.SessionID, *t.Change)
	}
	return nil
}

func (r *SessionRepository) explainRejectedTransition(ctx context.Context, db DB, t domain.SessionTransition) error {
	var (
		token  *string
		status string
	)
	err := db.QueryRow(ctx, `SELECT lease_token, status FROM sessions WHERE id = $1`, t.SessionID).Scan(&token, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	if token == nil || *token != t.Token {
		return domain.ErrLeaseLost
	}
	return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, status, t.To)
}

// ReleaseLease gives up a lease without changing status.
func (r *SessionRepository) ReleaseLease(ctx context.Context, sessionID, token string, resetProcessed bool, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET
			lease_token = NULL,
			lease_expires_at = NULL,
			processed = processed AND NOT $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $1 AND lease_token = $2`,
		sessionID, token, resetProcessed, timeToPgTimestamptz(at),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// SetReview stores the review of a completed, unreviewed session.
func (r *SessionRepository) SetReview(ctx context.Context, tx usecase.Transaction, sessionID string, review domain.Review) error {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE sessions SET
			review_rating = $2,
			review_comment = $3,
			reviewed_at = $4,
			version = version + 1,
			updated_at = $4
		WHERE id = $1 AND status = 'completed' AND review_rating IS NULL`,
		sessionID, review.Rating, review.Comment, timeToPgTimestamptz(review.At),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyReviewed
	}
	return nil
}

// ListByParticipant returns sessions the participant teaches or attends, latest first.
func (r *SessionRepository) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*domain.Session, error) {
	return r.list(ctx, true,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE teacher_id = $1 OR learner_id = $1
		ORDER BY scheduled_at DESC, id DESC LIMIT $2 OFFSET $3`,
		participantID, limit, offset,
	)
}

// ListStalled returns processed, non-terminal sessions whose lease expired.
func (r *SessionRepository) ListStalled(ctx context.Context, now time.Time, limit int) ([]*domain.Session, error) {
	return r.list(ctx, false,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE processed
			AND status IN ('confirmed', 'in_progress')
			AND (lease_expires_at IS NULL OR lease_expires_at <= $1)
		ORDER BY scheduled_at, id LIMIT $2`,
		timeToPgTimestamptz(now), limit,
	)
}

func (r *SessionRepository) list(ctx context.Context, withHistory bool, sql string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if withHistory {
		if err := r.loadHistory(ctx, sessions); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (r *SessionRepository) loadHistory(ctx context.Context, sessions []*domain.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Session, len(sessions))
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT session_id, from_status, to_status, actor, reason, at
		FROM session_status_history WHERE session_id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID, from, to string
			change              domain.StatusChange
			at                  pgtype.Timestamptz
		)
		if err := rows.Scan(&sessionID, &from, &to, &change.Actor, &change.Reason, &at); err != nil {
			return err
		}
		change.From = domain.SessionStatus(from)
		change.To = domain.SessionStatus(to)
		change.At = at.Time
		if s, ok := byID[sessionID]; ok {
			s.StatusHistory = append(s.StatusHistory, change)
		}
	}

	return rows.Err()
}

func insertHistory(ctx context.Context, db DB, sessionID string, change domain.StatusChange) error {
	_, err := db.Exec(ctx,
		`INSERT INTO session_status_history (session_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, string(change.From), string(change.To), change.Actor, change.Reason, timeToPgTimestamptz(change.At),
	)
	return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s                                     domain.Session
		status                                string
		cost                                  pgtype.Numeric
		scheduledAt, createdAt, updatedAt     pgtype.Timestamptz
		leaseExpiresAt, cancelledAt, reviewed pgtype.Timestamptz
		cancelledBy, cancelReason, comment    *string
		rating                                *int32
	)
	err := row.Scan(
		&s.ID,
		&s.TeacherID,
		&s.LearnerID,
		&s.Skill,
		&scheduledAt,
		&s.DurationMinutes,
		&cost,
		&status,
		&s.Version,
		&s.LeaseToken,
		&leaseExpiresAt,
		&s.Processed,
		&s.TransferID,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&rating,
		&comment,
		&reviewed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.SessionStatus(status)
	s.CreditCost = numericToDecimal(cost)
	s.ScheduledAt = scheduledAt.Time
	s.LeaseExpiresAt = optionalTime(leaseExpiresAt)
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time

	if cancelledBy != nil {
		s.Cancellation = &domain.Cancellation{By: *cancelledBy, At: cancelledAt.Time}
		if cancelReason != nil {
			s.Cancellation.Reason = *cancelReason
		}
	}
	if rating != nil {
		s.Review = &domain.Review{Rating: int(*rating), At: reviewed.Time}
		if comment != nil {
			s.Review.Comment = *comment
		}
	}

	return &s, nil
}

func statusStrings(statuses []domain.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// sourcesOf lists the statuses from which to is reachable.
func sourcesOf(to domain.SessionStatus) []domain.SessionStatus {
	var from []domain.SessionStatus
	for _, s := range []domain.SessionStatus{
		domain.SessionPending, domain.SessionConfirmed, domain.SessionInProgress,
		domain.SessionCompleted, domain.SessionCancelled,
	} {
		if s.CanTransitionTo(to) {
			from = append(from, s)
		}
	}
	return from
}
