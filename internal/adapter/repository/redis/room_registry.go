package redis

import (
	"context"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/timebank/internal/domain"
)

// joinScript returns 1 when the join created the room.
var joinScript = redis.NewScript(`
local existed = redis.call('EXISTS', KEYS[1])
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if existed == 1 then
	return 0
end
return 1
`)

// leaveScript returns the remaining member count, or -1 when the room is gone.
// Redis drops a set when its last member is removed.
var leaveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('SREM', KEYS[1], ARGV[1])
return redis.call('SCARD', KEYS[1])
`)

// RoomRegistry implements usecase.RoomRegistry with one Redis set per room.
type RoomRegistry struct {
	client *redis.Client
	prefix string
}

// NewRoomRegistry creates a new RoomRegistry.
func NewRoomRegistry(client *redis.Client) *RoomRegistry {
	return &RoomRegistry{
		client: client,
		prefix: "timebank:room:",
	}
}

// Join adds participantID to the room and refreshes its TTL.
func (r *RoomRegistry) Join(ctx context.Context, sessionID, participantID string, ttl time.Duration) (bool, error) {
	created, err := joinScript.Run(ctx, r.client, []string{r.prefix + sessionID}, participantID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return created == 1, nil
}

// Leave removes participantID from the room.
func (r *RoomRegistry) Leave(ctx context.Context, sessionID, participantID string) (int, error) {
	remaining, err := leaveScript.Run(ctx, r.client, []string{r.prefix + sessionID}, participantID).Int()
	if err != nil {
		return 0, err
	}
	if remaining < 0 {
		return 0, domain.ErrRoomNotFound
	}
	return remaining, nil
}

// Members lists the room's participants in sorted order.
func (r *RoomRegistry) Members(ctx context.Context, sessionID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.prefix+sessionID).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	slices.Sort(members)
	return members, nil
}
