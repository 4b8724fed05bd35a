package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/domain"
)

// Crediter is the part of LedgerUseCase used to fund new accounts.
type Crediter interface {
	Credit(ctx context.Context, input CreditInput) (*domain.Transaction, error)
}

// AccountConfig holds the dependencies of AccountUseCase.
type AccountConfig struct {
	TxManager         TransactionManager
	AccountRepo       AccountRepository
	ParticipantRepo   ParticipantRepository
	OutboxRepo        OutboxRepository
	Ledger            Crediter
	IDGen             IDGenerator
	Logger            zerolog.Logger
	Now               func() time.Time
	InitialGrant      decimal.Decimal
	DefaultHourlyRate decimal.Decimal
}

// AccountUseCase handles participant registration and profiles.
type AccountUseCase struct {
	txManager         TransactionManager
	accountRepo       AccountRepository
	participantRepo   ParticipantRepository
	outboxRepo        OutboxRepository
	ledger            Crediter
	idGen             IDGenerator
	logger            zerolog.Logger
	now               func() time.Time
	initialGrant      decimal.Decimal
	defaultHourlyRate decimal.Decimal
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(cfg AccountConfig) *AccountUseCase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if !cfg.DefaultHourlyRate.IsPositive() {
		cfg.DefaultHourlyRate = decimal.NewFromInt(1)
	}

	return &AccountUseCase{
		txManager:         cfg.TxManager,
		accountRepo:       cfg.AccountRepo,
		participantRepo:   cfg.ParticipantRepo,
		outboxRepo:        cfg.OutboxRepo,
		ledger:            cfg.Ledger,
		idGen:             cfg.IDGen,
		logger:            cfg.Logger,
		now:               cfg.Now,
		initialGrant:      cfg.InitialGrant,
		defaultHourlyRate: cfg.DefaultHourlyRate,
	}
}

// RegisterInput represents input for registering a participant.
type RegisterInput struct {
	DisplayName string
	Skills      []string
	HourlyRate  decimal.Decimal
}

// Profile is a participant together with its account.
type Profile struct {
	Participant *domain.Participant
	Account     *domain.Account
}

// Register creates a participant and its account, then credits the
// starting balance as an initial grant.
func (uc *AccountUseCase) Register(ctx context.Context, input RegisterInput) (*Profile, error) {
	if err := domain.ValidateDisplayName(input.DisplayName); err != nil {
		return nil, err
	}
	skills, err := domain.ValidateSkills(input.Skills)
	if err != nil {
		return nil, err
	}
	rate := input.HourlyRate
	if rate.IsZero() {
		rate = uc.defaultHourlyRate
	}
	if err := domain.ValidateHourlyRate(rate); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	id := uc.idGen.Generate()

	account := &domain.Account{
		ID:        id,
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	participant := &domain.Participant{
		ID:          id,
		DisplayName: input.DisplayName,
		HourlyRate:  rate,
		Skills:      skills,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.accountRepo.Create(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := uc.participantRepo.Create(ctx, tx, participant); err != nil {
		return nil, err
	}
	err = uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   id,
		AggregateType: domain.AggregateTypeParticipant,
		EventType:     domain.EventTypeParticipantCreated,
		Payload:       map[string]any{"participant_id": id, "display_name": input.DisplayName},
		CreatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if uc.initialGrant.IsPositive() {
		_, err := uc.ledger.Credit(ctx, CreditInput{
			AccountID:      id,
			Amount:         uc.initialGrant,
			Kind:           domain.KindInitialGrant,
			Description:    "welcome grant",
			IdempotencyKey: initialGrantKeyPrefix + id,
		})
		if err != nil {
			uc.logger.Error().Err(err).Str("participant_id", id).Msg("initial grant failed")
			return nil, err
		}
	}

	uc.logger.Info().Str("participant_id", id).Msg("participant registered")

	return uc.GetProfile(ctx, id)
}

// GetProfile retrieves a participant and its account.
func (uc *AccountUseCase) GetProfile(ctx context.Context, id string) (*Profile, error) {
	participant, err := uc.participantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := uc.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{Participant: participant, Account: account}, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, id)
}

// UpdateOfferingInput represents the skills and rate a participant teaches at.
type UpdateOfferingInput struct {
	ParticipantID string
	Skills        []string
	HourlyRate    decimal.Decimal
}

// UpdateOffering replaces a participant's skills and hourly rate. Sessions
// already booked keep the cost computed at booking.
func (uc *AccountUseCase) UpdateOffering(ctx context.Context, caller domain.Caller, input UpdateOfferingInput) (*Profile, error) {
	if !caller.Is(input.ParticipantID) {
		return nil, domain.ErrNotAuthorized
	}
	skills, err := domain.ValidateSkills(input.Skills)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateHourlyRate(input.HourlyRate); err != nil {
		return nil, err
	}

	if err := uc.participantRepo.UpdateOffering(ctx, input.ParticipantID, skills, input.HourlyRate, uc.now().UTC()); err != nil {
		return nil, err
	}
	return uc.GetProfile(ctx, input.ParticipantID)
}

// Deactivate closes a participant's account. Accounts are never deleted.
func (uc *AccountUseCase) Deactivate(ctx context.Context, caller domain.Caller, id string) error {
	if !caller.Is(id) {
		return domain.ErrNotAuthorized
	}

	now := uc.now().UTC()
	if err := uc.accountRepo.SetActive(ctx, id, false, now); err != nil {
		return err
	}
	if err := uc.participantRepo.SetActive(ctx, id, false, now); err != nil {
		return err
	}

	uc.logger.Info().Str("participant_id", id).Str("by", caller.ID).Msg("participant deactivated")
	return nil
}

// ListParticipantsInput represents input for listing participants.
type ListParticipantsInput struct {
	Limit  int
	Offset int
}

// ListParticipants lists participants with pagination.
func (uc *AccountUseCase) ListParticipants(ctx context.Context, input ListParticipantsInput) ([]*domain.Participant, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}
	return uc.participantRepo.List(ctx, input.Limit, input.Offset)
}
