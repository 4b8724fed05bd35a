package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create stages an outbox event.
func (r *OutboxRepository) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	e := *event
	e.Payload = maps.Clone(event.Payload)
	return stage(tx, func(st *state) error {
		st.outbox[e.ID] = e
		st.outboxOrder = append(st.outboxOrder, e.ID)
		return nil
	})
}

// GetUnpublished returns unpublished events in insertion order.
func (r *OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	r.store.read(func(st *state) {
		for _, id := range st.outboxOrder {
			e := st.outbox[id]
			if e.Published {
				continue
			}
			e.Payload = maps.Clone(e.Payload)
			events = append(events, &e)
			if limit > 0 && len(events) == limit {
				return
			}
		}
	})
	return events, nil
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	return r.store.write(func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return errors.New("outbox event not found")
		}
		e.Published = true
		e.PublishedAt = &publishedAt
		st.outbox[id] = e
		return nil
	})
}

// DeletePublished removes events published before the given time.
func (r *OutboxRepository) DeletePublished(_ context.Context, before time.Time) error {
	return r.store.write(func(st *state) error {
		st.outboxOrder = slices.DeleteFunc(st.outboxOrder, func(id string) bool {
			e := st.outbox[id]
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
				delete(st.outbox, id)
				return true
			}
			return false
		})
		return nil
	})
}
