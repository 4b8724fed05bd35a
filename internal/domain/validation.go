package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidDisplayName = errors.New("invalid display name")
	ErrInvalidHourlyRate  = errors.New("invalid hourly rate")
	ErrInvalidSkill       = errors.New("invalid skill")
	ErrAmountTooLarge     = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall     = errors.New("amount below minimum allowed")
	ErrInvalidIDFormat    = errors.New("invalid ID format")
)

// Validation constants
const (
	MaxDisplayNameLength = 120
	MaxSkillLength       = 64
	MaxSkills            = 32
	MaxCreditAmount      = "10000"
	MinCreditAmount      = "0.01"
	MinHourlyRate        = "0.1"
	MaxHourlyRate        = "100"
	MaxReviewComment     = 2000
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateDisplayName validates a participant's display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDisplayName)
	}

	if len(name) > MaxDisplayNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDisplayName, MaxDisplayNameLength)
	}

	return nil
}

// ValidateAmount validates a credit amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	minAmount := decimal.RequireFromString(MinCreditAmount)
	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinCreditAmount)
	}

	maxAmount := decimal.RequireFromString(MaxCreditAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxCreditAmount)
	}

	return nil
}

// ValidateHourlyRate validates a teacher's rate in credits per hour.
func ValidateHourlyRate(rate decimal.Decimal) error {
	if rate.LessThan(decimal.RequireFromString(MinHourlyRate)) {
		return fmt.Errorf("%w: minimum rate is %s", ErrInvalidHourlyRate, MinHourlyRate)
	}
	if rate.GreaterThan(decimal.RequireFromString(MaxHourlyRate)) {
		return fmt.Errorf("%w: maximum rate is %s", ErrInvalidHourlyRate, MaxHourlyRate)
	}
	return nil
}

// ValidateSkills validates and normalizes a list of offered skills.
func ValidateSkills(skills []string) ([]string, error) {
	if len(skills) > MaxSkills {
		return nil, fmt.Errorf("%w: at most %d skills", ErrInvalidSkill, MaxSkills)
	}

	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		n := NormalizeSkill(s)
		if n == "" || len(n) > MaxSkillLength {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSkill, s)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// ValidateSchedule validates a requested lesson slot.
func ValidateSchedule(scheduledAt time.Time, durationMinutes int, now time.Time) error {
	if scheduledAt.IsZero() || !scheduledAt.After(now) {
		return fmt.Errorf("%w: session must start in the future", ErrInvalidSchedule)
	}
	if durationMinutes < MinSessionMinutes || durationMinutes > MaxSessionMinutes {
		return fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidSchedule, MinSessionMinutes, MaxSessionMinutes)
	}
	if durationMinutes%SessionMinuteStep != 0 {
		return fmt.Errorf("%w: duration must be a multiple of %d minutes", ErrInvalidSchedule, SessionMinuteStep)
	}
	return nil
}

// ValidateRating validates a review.
func ValidateRating(rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if len(comment) > MaxReviewComment {
		return fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidRating, MaxReviewComment)
	}
	return nil
}

// ValidateID validates an externally supplied identifier.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return ErrInvalidIDFormat
	}
	return nil
}

// Page size bounds applied by ClampPagination.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ClampPagination applies the default page size and bounds. Out-of-range
// values are corrected rather than rejected.
func ClampPagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
