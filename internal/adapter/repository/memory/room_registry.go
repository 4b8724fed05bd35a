package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iho/timebank/internal/domain"
)

type room struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// RoomRegistry implements usecase.RoomRegistry within one process.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*room
	now   func() time.Time
}

// NewRoomRegistry creates a new RoomRegistry sharing the store's clock.
func NewRoomRegistry(store *Store) *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*room), now: store.now}
}

// Join adds participantID to the session's room.
func (r *RoomRegistry) Join(_ context.Context, sessionID, participantID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rm := r.live(sessionID, now)
	created := rm == nil
	if created {
		rm = &room{members: make(map[string]struct{})}
		r.rooms[sessionID] = rm
	}
	rm.members[participantID] = struct{}{}
	rm.expiresAt = now.Add(ttl)
	return created, nil
}

// Leave removes participantID and drops the room when it is empty.
func (r *RoomRegistry) Leave(_ context.Context, sessionID, participantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.live(sessionID, r.now())
	if rm == nil {
		return 0, domain.ErrRoomNotFound
	}
	delete(rm.members, participantID)
	if len(rm.members) == 0 {
		delete(r.rooms, sessionID)
	}
	return len(rm.members), nil
}

// Members lists the room's participants in sorted order.
func (r *RoomRegistry) Members(_ context.Context, sessionID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.live(sessionID, r.now())
	if rm == nil {
		return nil, domain.ErrRoomNotFound
	}
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
	}
	slices.Sort(members)
	return members, nil
}

func (r *RoomRegistry) live(sessionID string, now time.Time) *room {
	rm, ok := r.rooms[sessionID]
	if !ok {
		return nil
	}
	if !rm.expiresAt.After(now) {
		delete(r.rooms, sessionID)
		return nil
	}
	return rm
}
