package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// ParticipantService defines the behavior needed by ParticipantHandler.
type ParticipantService interface {
	Register(ctx context.Context, input usecase.RegisterInput) (*usecase.Profile, error)
	GetProfile(ctx context.Context, id string) (*usecase.Profile, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateOffering(ctx context.Context, caller domain.Caller, input usecase.UpdateOfferingInput) (*usecase.Profile, error)
	Deactivate(ctx context.Context, caller domain.Caller, id string) error
	ListParticipants(ctx context.Context, input usecase.ListParticipantsInput) ([]*domain.Participant, error)
}

// ParticipantHandler handles participant and account HTTP requests.
type ParticipantHandler struct {
	participantUC ParticipantService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(participantUC ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantUC: participantUC}
}

// Register creates a participant together with its funded account.
func (h *ParticipantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterParticipantRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	profile, err := h.participantUC.Register(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to register participant", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ProfileFromUseCase(profile))
}

// Get retrieves a participant profile.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "participant ID") {
		return
	}

	profile, err := h.participantUC.GetProfile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get participant", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProfileFromUseCase(profile))
}

// List lists participants.
func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)

	participants, err := h.participantUC.ListParticipants(r.Context(), usecase.ListParticipantsInput{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeDomainError(w, "failed to list participants", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListParticipantsResponse{
		Participants: dto.ParticipantsFromDomain(participants),
	})
}

// UpdateOffering replaces the skills and hourly rate of a participant.
func (h *ParticipantHandler) UpdateOffering(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "participant ID") {
		return
	}

	var req dto.UpdateOfferingRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	profile, err := h.participantUC.UpdateOffering(r.Context(), caller, req.ToUseCaseInput(id))
	if err != nil {
		writeDomainError(w, "failed to update offering", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProfileFromUseCase(profile))
}

// Deactivate closes a participant's account.
func (h *ParticipantHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "participant ID") {
		return
	}

	if err := h.participantUC.Deactivate(r.Context(), caller, id); err != nil {
		writeDomainError(w, "failed to deactivate participant", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetAccount retrieves the account of a participant.
func (h *ParticipantHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "account ID") {
		return
	}

	account, err := h.participantUC.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// Me returns the authenticated caller.
func (h *ParticipantHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.CallerResponse{ID: caller.ID, Role: string(caller.Role)})
}
