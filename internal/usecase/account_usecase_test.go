package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

func TestAccountUseCase_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.accounts.Register(ctx, usecase.RegisterInput{
		DisplayName: "Ada",
		Skills:      []string{" Go ", "go", "SQL"},
		HourlyRate:  credits("1.5"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"go", "sql"}, profile.Participant.Skills)
	assert.True(t, profile.Participant.HourlyRate.Equal(credits("1.5")))
	assert.True(t, profile.Account.Balance.Equal(initialGrant))
	assert.True(t, profile.Account.Active)

	entries, err := f.ledger.ListTransactions(ctx, usecase.ListTransactionsInput{AccountID: profile.Account.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindInitialGrant, entries[0].Kind)

	f.requireConsistent(t)
}

func TestAccountUseCase_RegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		input   usecase.RegisterInput
		wantErr error
	}{
		{"empty name", usecase.RegisterInput{DisplayName: "  "}, domain.ErrInvalidDisplayName},
		{"blank skill", usecase.RegisterInput{DisplayName: "x", Skills: []string{""}}, domain.ErrInvalidSkill},
		{"rate too high", usecase.RegisterInput{DisplayName: "x", HourlyRate: decimal.NewFromInt(500)}, domain.ErrInvalidHourlyRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestAccountUseCase_UpdateOffering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.register(t, "ada", 1, "go")
	bob := f.register(t, "bob", 1)

	_, err := f.accounts.UpdateOffering(ctx, bob, usecase.UpdateOfferingInput{ParticipantID: ada.ID, Skills: []string{"rust"}, HourlyRate: credits("2")})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	profile, err := f.accounts.UpdateOffering(ctx, ada, usecase.UpdateOfferingInput{ParticipantID: ada.ID, Skills: []string{"Rust"}, HourlyRate: credits("2")})
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, profile.Participant.Skills)
	assert.True(t, profile.Participant.HourlyRate.Equal(credits("2")))
}

func TestAccountUseCase_Deactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.register(t, "ada", 1, "go")
	bob := f.register(t, "bob", 1)

	assert.ErrorIs(t, f.accounts.Deactivate(ctx, bob, ada.ID), domain.ErrNotAuthorized)
	require.NoError(t, f.accounts.Deactivate(ctx, ada, ada.ID))

	_, err := f.ledger.Transfer(ctx, usecase.TransferInput{FromAccountID: bob.ID, ToAccountID: ada.ID, Amount: credits("1")})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	_, err = f.sessions.Book(ctx, bob, usecase.BookInput{
		TeacherID: ada.ID, LearnerID: bob.ID, Skill: "go",
		ScheduledAt: f.clock.Now().Add(24 * time.Hour), DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	participants, err := f.accounts.ListParticipants(ctx, usecase.ListParticipantsInput{})
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}
