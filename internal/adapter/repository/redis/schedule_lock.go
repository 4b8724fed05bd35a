package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iho/timebank/internal/domain"
)

// acquireScript sets every key or none.
var acquireScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		return 0
	end
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// releaseScript deletes the keys still owned by the token.
var releaseScript = redis.NewScript(`
local released = 0
for _, key in ipairs(KEYS) do
	if redis.call('GET', key) == ARGV[1] then
		released = released + redis.call('DEL', key)
	end
end
return released
`)

// ScheduleLocker implements usecase.ScheduleLocker with expiring Redis keys
// shared by every server instance.
type ScheduleLocker struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewScheduleLocker creates a new ScheduleLocker.
func NewScheduleLocker(client *redis.Client) *ScheduleLocker {
	return &ScheduleLocker{
		client: client,
		prefix: "timebank:",
		now:    time.Now,
	}
}

// Acquire holds all keys for ttl, or returns domain.ErrScheduleBusy.
func (l *ScheduleLocker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (*domain.ScheduleHold, error) {
	hold := &domain.ScheduleHold{
		Keys:      keys,
		Token:     uuid.NewString(),
		ExpiresAt: l.now().Add(ttl),
	}

	ok, err := acquireScript.Run(ctx, l.client, l.fullKeys(keys), hold.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, domain.ErrScheduleBusy
	}
	return hold, nil
}

// Release frees the hold's keys unless they expired and were taken by another hold.
func (l *ScheduleLocker) Release(ctx context.Context, hold *domain.ScheduleHold) error {
	if hold == nil || len(hold.Keys) == 0 {
		return nil
	}
	return releaseScript.Run(ctx, l.client, l.fullKeys(hold.Keys), hold.Token).Err()
}

func (l *ScheduleLocker) fullKeys(keys []string) []string {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = l.prefix + key
	}
	return full
}
