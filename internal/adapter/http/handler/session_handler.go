package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// SessionService defines the behavior needed by SessionHandler.
type SessionService interface {
	Book(ctx context.Context, caller domain.Caller, input usecase.BookInput) (*domain.Session, error)
	Confirm(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
	Cancel(ctx context.Context, caller domain.Caller, sessionID, reason string) (*domain.Session, error)
	Complete(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
	MarkInProgress(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
	AddReview(ctx context.Context, caller domain.Caller, input usecase.AddReviewInput) (*domain.Session, error)
	Get(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
	ListByParticipant(ctx context.Context, caller domain.Caller, input usecase.ListSessionsInput) ([]*domain.Session, error)
}

// SessionHandler handles lesson session HTTP requests.
type SessionHandler struct {
	sessionUC SessionService
	retrier   usecase.Retrier
}

// NewSessionHandler creates a new SessionHandler. When retrier is non-nil,
// completion is retried on transient conflicts.
func NewSessionHandler(sessionUC SessionService, retrier usecase.Retrier) *SessionHandler {
	return &SessionHandler{sessionUC: sessionUC, retrier: retrier}
}

// Book books a lesson.
func (h *SessionHandler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	var req dto.BookSessionRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	session, err := h.sessionUC.Book(r.Context(), caller, req.ToUseCaseInput(caller))
	if err != nil {
		writeDomainError(w, "failed to book session", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SessionFromDomain(session))
}

// Get retrieves a session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "failed to get session", h.sessionUC.Get)
}

// Confirm confirms a pending session.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "failed to confirm session", h.sessionUC.Confirm)
}

// Start marks a confirmed session as in progress.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "failed to start session", h.sessionUC.MarkInProgress)
}

// Complete completes a session, paying the teacher.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "failed to complete session", func(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
		if h.retrier == nil {
			return h.sessionUC.Complete(ctx, caller, id)
		}
		var session *domain.Session
		err := h.retrier.Retry(ctx, func() error {
			var err error
			session, err = h.sessionUC.Complete(ctx, caller, id)
			return err
		})
		return session, err
	})
}

// Cancel cancels a pending or confirmed session.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	var req dto.CancelSessionRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	session, err := h.sessionUC.Cancel(r.Context(), caller, id, req.Reason)
	if err != nil {
		writeDomainError(w, "failed to cancel session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}

// Review records the learner's rating.
func (h *SessionHandler) Review(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	var req dto.ReviewRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	session, err := h.sessionUC.AddReview(r.Context(), caller, req.ToUseCaseInput(id))
	if err != nil {
		writeDomainError(w, "failed to review session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}

// ListByParticipant lists the sessions of a participant.
func (h *SessionHandler) ListByParticipant(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "participant ID") {
		return
	}
	limit, offset := parsePage(r)

	sessions, err := h.sessionUC.ListByParticipant(r.Context(), caller, usecase.ListSessionsInput{
		ParticipantID: id,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeDomainError(w, "failed to list sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListSessionsResponse{Sessions: dto.SessionsFromDomain(sessions)})
}

type sessionAction func(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)

func (h *SessionHandler) act(w http.ResponseWriter, r *http.Request, message string, fn sessionAction) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	session, err := fn(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}
