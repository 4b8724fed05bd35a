package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
)

func TestSessionFromDomain(t *testing.T) {
	now := time.Date(2030, 1, 2, 15, 0, 0, 0, time.UTC)
	transferID := "tx-1"
	session := &domain.Session{
		ID:              "sess-1",
		TeacherID:       "t",
		LearnerID:       "l",
		Skill:           "go",
		ScheduledAt:     now,
		DurationMinutes: 90,
		CreditCost:      decimal.RequireFromString("1.5"),
		Status:          domain.SessionCompleted,
		Version:         4,
		TransferID:      &transferID,
		StatusHistory: []domain.StatusChange{
			{From: domain.SessionPending, To: domain.SessionConfirmed, Actor: "t", At: now},
		},
		Review: &domain.Review{Rating: 5, Comment: "great", At: now},
	}

	resp := SessionFromDomain(session)
	if resp.Status != "completed" || resp.Version != 4 || resp.TransferID == nil || *resp.TransferID != "tx-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.History) != 1 || resp.History[0].To != "confirmed" {
		t.Fatalf("unexpected history %+v", resp.History)
	}
	if resp.Review == nil || resp.Review.Rating != 5 {
		t.Fatalf("expected review, got %+v", resp.Review)
	}
	if resp.Cancellation != nil {
		t.Fatalf("expected no cancellation, got %+v", resp.Cancellation)
	}
}

func TestParticipantFromDomain_EmptySkillsEncodeAsArray(t *testing.T) {
	resp := ParticipantFromDomain(&domain.Participant{ID: "p-1", DisplayName: "Ada", HourlyRate: decimal.NewFromInt(1)})

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	skills, ok := decoded["skills"].([]any)
	if !ok || len(skills) != 0 {
		t.Fatalf("expected empty skills array, got %v", decoded["skills"])
	}
}
