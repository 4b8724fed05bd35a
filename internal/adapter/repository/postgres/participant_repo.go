package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

const participantColumns = `id, display_name, hourly_rate, skills, hours_taught, hours_learned,
	sessions_taught, sessions_learned, rating_total, rating_count, active, created_at, updated_at`

// ParticipantRepository implements usecase.ParticipantRepository.
type ParticipantRepository struct {
	db DB
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(db DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create creates a participant within a transaction.
func (r *ParticipantRepository) Create(ctx context.Context, tx usecase.Transaction, p *domain.Participant) error {
	_, err := txDB(tx).Exec(ctx,
		`INSERT INTO participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID,
		p.DisplayName,
		decimalToNumeric(p.HourlyRate),
		p.Skills,
		decimalToNumeric(p.Stats.HoursTaught),
		decimalToNumeric(p.Stats.HoursLearned),
		p.Stats.SessionsTaught,
		p.Stats.SessionsLearned,
		p.Stats.RatingTotal,
		p.Stats.RatingCount,
		p.Active,
		timeToPgTimestamptz(p.CreatedAt),
		timeToPgTimestamptz(p.UpdatedAt),
	)
	return err
}

// GetByID retrieves a participant by ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, err
	}

	return p, nil
}

// UpdateOffering replaces the skills and hourly rate.
func (r *ParticipantRepository) UpdateOffering(ctx context.Context, id string, skills []string, hourlyRate decimal.Decimal, updatedAt time.Time) error {
	return r.exec(ctx, r.db,
		`UPDATE participants SET skills = $2, hourly_rate = $3, updated_at = $4 WHERE id = $1`,
		id, skills, decimalToNumeric(hourlyRate), timeToPgTimestamptz(updatedAt),
	)
}

// SetActive activates or deactivates a participant.
func (r *ParticipantRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	return r.exec(ctx, r.db,
		`UPDATE participants SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, timeToPgTimestamptz(updatedAt),
	)
}

// ApplyStats increments the participant's aggregates within a transaction.
func (r *ParticipantRepository) ApplyStats(ctx context.Context, tx usecase.Transaction, id string, delta domain.StatsDelta, updatedAt time.Time) error {
	ratingCount := 0
	if delta.Rating > 0 {
		ratingCount = 1
	}

	return r.exec(ctx, txDB(tx),
		`UPDATE participants SET
			hours_taught = hours_taught + $2,
			hours_learned = hours_learned + $3,
			sessions_taught = sessions_taught + $4,
			sessions_learned = sessions_learned + $5,
			rating_total = rating_total + $6,
			rating_count = rating_count + $7,
			updated_at = $8
		WHERE id = $1`,
		id,
		decimalToNumeric(delta.HoursTaught),
		decimalToNumeric(delta.HoursLearned),
		delta.SessionsTaught,
		delta.SessionsLearned,
		delta.Rating,
		ratingCount,
		timeToPgTimestamptz(updatedAt),
	)
}

// List lists participants in registration order.
func (r *ParticipantRepository) List(ctx context.Context, limit, offset int) ([]*domain.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+participantColumns+` FROM participants ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]*domain.Participant, 0, limit)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (r *ParticipantRepository) exec(ctx context.Context, db DB, sql string, args ...any) error {
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p                     domain.Participant
		rate, taught, learned pgtype.Numeric
		createdAt, updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&rate,
		&p.Skills,
		&taught,
		&learned,
		&p.Stats.SessionsTaught,
		&p.Stats.SessionsLearned,
		&p.Stats.RatingTotal,
		&p.Stats.RatingCount,
		&p.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.HourlyRate = numericToDecimal(rate)
	p.Stats.HoursTaught = numericToDecimal(taught)
	p.Stats.HoursLearned = numericToDecimal(learned)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}
