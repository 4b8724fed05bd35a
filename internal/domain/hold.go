package domain

import (
	"sort"
	"time"
)

// ScheduleHold is a short, expiring claim on a participant's calendar taken
// while a booking checks for overlaps and inserts the session.
type ScheduleHold struct {
	Keys      []string
	Token     string
	ExpiresAt time.Time
}

// ScheduleHoldKeys returns the hold keys for the given participants in
// acquisition order, without duplicates.
func ScheduleHoldKeys(participantIDs ...string) []string {
	seen := make(map[string]bool, len(participantIDs))
	keys := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, "schedule:"+id)
	}
	sort.Strings(keys)
	return keys
}

// Expired reports whether the hold has lapsed at now.
func (h *ScheduleHold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
