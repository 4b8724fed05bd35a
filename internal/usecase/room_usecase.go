package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/timebank/internal/domain"
)

// SessionStarter is the part of SessionUseCase the room relay drives.
type SessionStarter interface {
	Get(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
	MarkInProgress(ctx context.Context, caller domain.Caller, sessionID string) (*domain.Session, error)
}

// RoomUseCase admits participants to a session's call room. The first
// join of a confirmed session starts it.
type RoomUseCase struct {
	sessions SessionStarter
	registry RoomRegistry
	logger   zerolog.Logger
	ttl      time.Duration
}

// NewRoomUseCase creates a new RoomUseCase.
func NewRoomUseCase(sessions SessionStarter, registry RoomRegistry, logger zerolog.Logger, ttl time.Duration) *RoomUseCase {
	return &RoomUseCase{
		sessions: sessions,
		registry: registry,
		logger:   logger,
		ttl:      durationOr(ttl, DefaultRoomTTL),
	}
}

// Room is the current state of a session's call room.
type Room struct {
	SessionID string
	Members   []string
	Session   *domain.Session
}

// Join admits caller to the room. Only the session's participants may join,
// and only while the session is confirmed or in progress and inside its window.
func (uc *RoomUseCase) Join(ctx context.Context, caller domain.Caller, sessionID string) (*Room, error) {
	session, err := uc.sessions.Get(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(caller.ID) {
		return nil, domain.ErrNotAuthorized
	}

	// MarkInProgress checks the window and returns in-progress sessions as is.
	session, err = uc.sessions.MarkInProgress(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}

	created, err := uc.registry.Join(ctx, sessionID, caller.ID, uc.ttl)
	if err != nil {
		return nil, err
	}
	if created {
		uc.logger.Info().Str("session_id", sessionID).Str("participant_id", caller.ID).Msg("room opened")
	}

	members, err := uc.registry.Members(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &Room{SessionID: sessionID, Members: members, Session: session}, nil
}

// Leave removes caller from the room. The room is dropped when empty; the
// session itself stays in progress until completed.
func (uc *RoomUseCase) Leave(ctx context.Context, caller domain.Caller, sessionID string) (int, error) {
	remaining, err := uc.registry.Leave(ctx, sessionID, caller.ID)
	if err != nil {
		return 0, err
	}
	if remaining == 0 {
		uc.logger.Info().Str("session_id", sessionID).Msg("room closed")
	}
	return remaining, nil
}

// Members lists who is connected to the room.
func (uc *RoomUseCase) Members(ctx context.Context, caller domain.Caller, sessionID string) ([]string, error) {
	if _, err := uc.sessions.Get(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	members, err := uc.registry.Members(ctx, sessionID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return []string{}, nil
	}
	return members, err
}
