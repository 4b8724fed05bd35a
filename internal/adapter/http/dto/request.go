package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// RegisterParticipantRequest represents a request to join the time bank.
type RegisterParticipantRequest struct {
	DisplayName string          `json:"display_name" validate:"required,max=100"`
	Skills      []string        `json:"skills"       validate:"max=20,dive,required,max=50"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"  validate:"gte=0"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterParticipantRequest) ToUseCaseInput() usecase.RegisterInput {
	return usecase.RegisterInput{
		DisplayName: r.DisplayName,
		Skills:      r.Skills,
		HourlyRate:  r.HourlyRate,
	}
}

// UpdateOfferingRequest replaces a participant's skills and rate.
type UpdateOfferingRequest struct {
	Skills     []string        `json:"skills"      validate:"required,max=20,dive,required,max=50"`
	HourlyRate decimal.Decimal `json:"hourly_rate" validate:"gt=0"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateOfferingRequest) ToUseCaseInput(participantID string) usecase.UpdateOfferingInput {
	return usecase.UpdateOfferingInput{
		ParticipantID: participantID,
		Skills:        r.Skills,
		HourlyRate:    r.HourlyRate,
	}
}

// BookSessionRequest represents a request to book a lesson. LearnerID
// defaults to the caller.
type BookSessionRequest struct {
	TeacherID       string    `json:"teacher_id"       validate:"required"`
	LearnerID       string    `json:"learner_id"`
	Skill           string    `json:"skill"            validate:"required,max=50"`
	ScheduledAt     time.Time `json:"scheduled_at"     validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=15,max=480"`
}

// ToUseCaseInput converts to use case input.
func (r *BookSessionRequest) ToUseCaseInput(caller domain.Caller) usecase.BookInput {
	learner := r.LearnerID
	if learner == "" {
		learner = caller.ID
	}
	return usecase.BookInput{
		TeacherID:       r.TeacherID,
		LearnerID:       learner,
		Skill:           r.Skill,
		ScheduledAt:     r.ScheduledAt,
		DurationMinutes: r.DurationMinutes,
	}
}

// CancelSessionRequest carries an optional cancellation reason.
type CancelSessionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ReviewRequest represents the learner's rating of a completed session.
type ReviewRequest struct {
	Rating  int    `json:"rating"  validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ToUseCaseInput converts to use case input.
func (r *ReviewRequest) ToUseCaseInput(sessionID string) usecase.AddReviewInput {
	return usecase.AddReviewInput{
		SessionID: sessionID,
		Rating:    r.Rating,
		Comment:   r.Comment,
	}
}

// CreditRequest represents an administrative credit.
type CreditRequest struct {
	AccountID      string          `json:"account_id"      validate:"required"`
	Amount         decimal.Decimal `json:"amount"          validate:"gt=0"`
	Kind           string          `json:"kind"            validate:"required,oneof=credit refund bonus initial-grant"`
	Description    string          `json:"description"     validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// ToUseCaseInput converts to use case input.
func (r *CreditRequest) ToUseCaseInput() usecase.CreditInput {
	return usecase.CreditInput{
		AccountID:      r.AccountID,
		Amount:         r.Amount,
		Kind:           domain.TransactionKind(r.Kind),
		Description:    r.Description,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// ReverseRequest represents a request to reverse a transfer.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ToUseCaseInput converts to use case input.
func (r *ReverseRequest) ToUseCaseInput(transactionID string) usecase.ReverseInput {
	return usecase.ReverseInput{
		TransactionID: transactionID,
		Reason:        r.Reason,
	}
}
