package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Participant is the marketplace profile attached to an account.
type Participant struct {
	ID          string
	DisplayName string
	HourlyRate  decimal.Decimal
	Skills      []string
	Stats       ParticipantStats
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParticipantStats are the aggregates updated on session completion and review.
type ParticipantStats struct {
	HoursTaught     decimal.Decimal
	HoursLearned    decimal.Decimal
	SessionsTaught  int
	SessionsLearned int
	RatingTotal     int
	RatingCount     int
}

// StatsDelta is an increment applied to ParticipantStats.
type StatsDelta struct {
	HoursTaught     decimal.Decimal
	HoursLearned    decimal.Decimal
	SessionsTaught  int
	SessionsLearned int
	Rating          int
}

// OffersSkill reports whether the participant teaches skill (case-insensitive).
func (p *Participant) OffersSkill(skill string) bool {
	skill = NormalizeSkill(skill)
	for _, s := range p.Skills {
		if NormalizeSkill(s) == skill {
			return true
		}
	}
	return false
}

// Rating returns the mean of all received ratings, zero when unrated.
func (p *Participant) Rating() decimal.Decimal {
	if p.Stats.RatingCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.Stats.RatingTotal)).
		Div(decimal.NewFromInt(int64(p.Stats.RatingCount))).
		Round(2)
}

// Apply returns the stats after adding d.
func (s ParticipantStats) Apply(d StatsDelta) ParticipantStats {
	s.HoursTaught = s.HoursTaught.Add(d.HoursTaught)
	s.HoursLearned = s.HoursLearned.Add(d.HoursLearned)
	s.SessionsTaught += d.SessionsTaught
	s.SessionsLearned += d.SessionsLearned
	if d.Rating > 0 {
		s.RatingTotal += d.Rating
		s.RatingCount++
	}
	return s
}

// NormalizeSkill canonicalizes a skill name for comparison and storage.
func NormalizeSkill(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}
