package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSessionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{SessionPending, SessionConfirmed, true},
		{SessionPending, SessionCancelled, true},
		{SessionPending, SessionCompleted, false},
		{SessionConfirmed, SessionInProgress, true},
		{SessionConfirmed, SessionCompleted, true},
		{SessionConfirmed, SessionCancelled, true},
		{SessionInProgress, SessionCompleted, true},
		{SessionInProgress, SessionCancelled, false},
		{SessionCompleted, SessionCancelled, false},
		{SessionCancelled, SessionConfirmed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	if !SessionCompleted.IsTerminal() || !SessionCancelled.IsTerminal() || SessionConfirmed.IsTerminal() {
		t.Error("unexpected terminal classification")
	}
}

func TestCreditCost(t *testing.T) {
	tests := []struct {
		minutes int
		rate    string
		want    string
	}{
		{60, "1", "1"},
		{90, "2", "3"},
		{45, "1", "0.75"},
		{240, "1", "4"},
		{15, "0.1", "0.03"},
	}

	for _, tt := range tests {
		got := CreditCost(tt.minutes, decimal.RequireFromString(tt.rate))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("CreditCost(%d, %s) = %s, want %s", tt.minutes, tt.rate, got, tt.want)
		}
	}
}

func TestSession_OverlapsAndWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{ScheduledAt: start, DurationMinutes: 60}

	if !s.Overlaps(start.Add(30*time.Minute), start.Add(90*time.Minute)) {
		t.Error("expected overlap with a slot starting mid-session")
	}
	if s.Overlaps(start.Add(60*time.Minute), start.Add(120*time.Minute)) {
		t.Error("back-to-back sessions must not overlap")
	}
	if s.Overlaps(start.Add(-60*time.Minute), start) {
		t.Error("session ending at start must not overlap")
	}

	leadIn := 10 * time.Minute
	if s.InWindow(start.Add(-11*time.Minute), leadIn) {
		t.Error("too early to start")
	}
	if !s.InWindow(start.Add(-10*time.Minute), leadIn) {
		t.Error("expected lead-in to be inside the window")
	}
	if !s.InWindow(start.Add(60*time.Minute), leadIn) {
		t.Error("expected scheduled end to be inside the window")
	}
	if s.InWindow(start.Add(61*time.Minute), leadIn) {
		t.Error("expected window to close after the scheduled end")
	}
}

func TestSession_LeaseFree(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{}
	if !s.LeaseFree(now) {
		t.Fatal("no lease should be free")
	}

	expires := now.Add(time.Second)
	s.LeaseExpiresAt = &expires
	if s.LeaseFree(now) {
		t.Fatal("unexpired lease should be held")
	}
	if !s.LeaseFree(now.Add(time.Second)) {
		t.Fatal("lease should be free once it reaches its expiry")
	}
}

func TestParticipant_OffersSkillAndRating(t *testing.T) {
	p := &Participant{Skills: []string{"guitar", "go"}}
	if !p.OffersSkill(" Guitar") {
		t.Error("expected case-insensitive skill match")
	}
	if p.OffersSkill("piano") {
		t.Error("unexpected skill")
	}

	if !p.Rating().IsZero() {
		t.Error("unrated participant should have zero rating")
	}
	p.Stats = p.Stats.Apply(StatsDelta{Rating: 5})
	p.Stats = p.Stats.Apply(StatsDelta{Rating: 4})
	if !p.Rating().Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("rating = %s, want 4.5", p.Rating())
	}
}

func TestScheduleHoldKeys(t *testing.T) {
	keys := ScheduleHoldKeys("b", "a", "b")
	if len(keys) != 2 || keys[0] != "schedule:a" || keys[1] != "schedule:b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
