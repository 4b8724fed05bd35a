package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// ParticipantRepository implements usecase.ParticipantRepository.
type ParticipantRepository struct {
	store *Store
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(store *Store) *ParticipantRepository {
	return &ParticipantRepository{store: store}
}

func cloneParticipant(p domain.Participant) *domain.Participant {
	p.Skills = slices.Clone(p.Skills)
	return &p
}

// Create stages a new participant.
func (r *ParticipantRepository) Create(_ context.Context, tx usecase.Transaction, participant *domain.Participant) error {
	p := *cloneParticipant(*participant)
	return stage(tx, func(st *state) error {
		if _, ok := st.participants[p.ID]; ok {
			return fmt.Errorf("participant %s already exists", p.ID)
		}
		st.participants[p.ID] = p
		return nil
	})
}

// GetByID retrieves a participant by ID.
func (r *ParticipantRepository) GetByID(_ context.Context, id string) (*domain.Participant, error) {
	var (
		p  domain.Participant
		ok bool
	)
	r.store.read(func(st *state) {
		p, ok = st.participants[id]
	})
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

// UpdateOffering replaces the skills and hourly rate.
func (r *ParticipantRepository) UpdateOffering(_ context.Context, id string, skills []string, hourlyRate decimal.Decimal, updatedAt time.Time) error {
	return r.update(id, func(p *domain.Participant) {
		p.Skills = slices.Clone(skills)
		p.HourlyRate = hourlyRate
		p.UpdatedAt = updatedAt
	})
}

// SetActive activates or deactivates a participant.
func (r *ParticipantRepository) SetActive(_ context.Context, id string, active bool, updatedAt time.Time) error {
	return r.update(id, func(p *domain.Participant) {
		p.Active = active
		p.UpdatedAt = updatedAt
	})
}

// ApplyStats stages an increment of the participant's aggregates.
func (r *ParticipantRepository) ApplyStats(_ context.Context, tx usecase.Transaction, id string, delta domain.StatsDelta, updatedAt time.Time) error {
	return stage(tx, func(st *state) error {
		p, ok := st.participants[id]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		p.Stats = p.Stats.Apply(delta)
		p.UpdatedAt = updatedAt
		st.participants[id] = p
		return nil
	})
}

// List returns participants in registration order.
func (r *ParticipantRepository) List(_ context.Context, limit, offset int) ([]*domain.Participant, error) {
	var participants []*domain.Participant
	r.store.read(func(st *state) {
		participants = make([]*domain.Participant, 0, len(st.participants))
		for _, p := range st.participants {
			participants = append(participants, cloneParticipant(p))
		}
	})
	slices.SortFunc(participants, func(a, b *domain.Participant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(participants, limit, offset), nil
}

func (r *ParticipantRepository) update(id string, fn func(p *domain.Participant)) error {
	return r.store.write(func(st *state) error {
		p, ok := st.participants[id]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		fn(&p)
		st.participants[id] = p
		return nil
	})
}
