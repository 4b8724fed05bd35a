package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/iho/timebank/internal/domain"
)

// DefaultTransactionStream is the stream read by the fraud risk advisor.
const DefaultTransactionStream = "timebank:transactions"

// StreamPublisher appends ledger outbox events to a Redis stream. Events of
// other aggregates are accepted and dropped.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher creates a StreamPublisher. The stream is trimmed to
// roughly maxLen entries when maxLen is positive.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultTransactionStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish adds the event to the stream.
func (p *StreamPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if event.AggregateType != domain.AggregateTypeTransaction {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":     event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
			"payload":      string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	return p.client.XAdd(ctx, args).Err()
}
