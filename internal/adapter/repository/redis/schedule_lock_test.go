package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/domain"
)

func TestScheduleLocker_AllOrNothing(t *testing.T) {
	client, _ := newTestRedisClient(t)
	locker := NewScheduleLocker(client)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, domain.ScheduleHoldKeys("alice", "bob"), 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, domain.ScheduleHoldKeys("bob", "carol"), 5*time.Second)
	require.ErrorIs(t, err, domain.ErrScheduleBusy)

	exists, err := client.Exists(ctx, "timebank:schedule:carol").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "a failed acquire must not hold any key")

	require.NoError(t, locker.Release(ctx, first))

	second, err := locker.Acquire(ctx, domain.ScheduleHoldKeys("bob", "carol"), 5*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestScheduleLocker_Expiry(t *testing.T) {
	client, mr := newTestRedisClient(t)
	locker := NewScheduleLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, domain.ScheduleHoldKeys("alice"), time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, domain.ScheduleHoldKeys("alice"), time.Minute)
	require.NoError(t, err)

	// Releasing the expired hold leaves the new owner's key in place.
	require.NoError(t, locker.Release(ctx, stale))
	owner, err := client.Get(ctx, "timebank:schedule:alice").Result()
	require.NoError(t, err)
	assert.Equal(t, fresh.Token, owner)
}

func TestScheduleLocker_ReleaseNil(t *testing.T) {
	client, _ := newTestRedisClient(t)
	assert.NoError(t, NewScheduleLocker(client).Release(context.Background(), nil))
}
