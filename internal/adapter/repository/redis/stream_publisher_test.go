package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/domain"
)

func TestStreamPublisher_PublishesLedgerEvents(t *testing.T) {
	client, _ := newTestRedisClient(t)
	pub := NewStreamPublisher(client, "", 1000)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, &domain.OutboxEvent{
		ID:            "evt-1",
		AggregateID:   "tx-1",
		AggregateType: domain.AggregateTypeTransaction,
		EventType:     domain.EventTypeTransactionCompleted,
		Payload:       map[string]any{"amount": "1.50"},
	}))
	require.NoError(t, pub.Publish(ctx, &domain.OutboxEvent{
		ID:            "evt-2",
		AggregateID:   "s1",
		AggregateType: domain.AggregateTypeSession,
		EventType:     domain.EventTypeSessionTransitioned,
	}))

	entries, err := client.XRange(ctx, DefaultTransactionStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt-1", entries[0].Values["event_id"])
	assert.Equal(t, domain.EventTypeTransactionCompleted, entries[0].Values["event_type"])
	assert.JSONEq(t, `{"amount":"1.50"}`, entries[0].Values["payload"].(string))
}
