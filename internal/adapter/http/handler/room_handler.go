package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// RoomService defines the behavior needed by RoomHandler.
type RoomService interface {
	Join(ctx context.Context, caller domain.Caller, sessionID string) (*usecase.Room, error)
	Leave(ctx context.Context, caller domain.Caller, sessionID string) (int, error)
	Members(ctx context.Context, caller domain.Caller, sessionID string) ([]string, error)
}

// RoomHandler handles call room HTTP requests.
type RoomHandler struct {
	roomUC RoomService
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(roomUC RoomService) *RoomHandler {
	return &RoomHandler{roomUC: roomUC}
}

// Join admits the caller to a session's room.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	room, err := h.roomUC.Join(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, "failed to join room", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RoomFromUseCase(room))
}

// Leave removes the caller from a session's room.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	remaining, err := h.roomUC.Leave(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, "failed to leave room", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

// Members lists who is in a session's room.
func (h *RoomHandler) Members(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "session ID") {
		return
	}

	members, err := h.roomUC.Members(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, "failed to list room members", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RoomFromUseCase(&usecase.Room{SessionID: id, Members: members}))
}
