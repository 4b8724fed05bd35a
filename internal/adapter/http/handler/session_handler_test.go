package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/adapter/http/middleware"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

type sessionServiceStub struct {
	bookFn     func(ctx context.Context, caller domain.Caller, input usecase.BookInput) (*domain.Session, error)
	transition func(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error)
	cancelFn   func(ctx context.Context, caller domain.Caller, id, reason string) (*domain.Session, error)
	reviewFn   func(ctx context.Context, caller domain.Caller, input usecase.AddReviewInput) (*domain.Session, error)
	listFn     func(ctx context.Context, caller domain.Caller, input usecase.ListSessionsInput) ([]*domain.Session, error)
}

func (s *sessionServiceStub) Book(ctx context.Context, caller domain.Caller, input usecase.BookInput) (*domain.Session, error) {
	return s.bookFn(ctx, caller, input)
}

func (s *sessionServiceStub) Confirm(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
	return s.transition(ctx, caller, id)
}

func (s *sessionServiceStub) Cancel(ctx context.Context, caller domain.Caller, id, reason string) (*domain.Session, error) {
	return s.cancelFn(ctx, caller, id, reason)
}

func (s *sessionServiceStub) Complete(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
	return s.transition(ctx, caller, id)
}

func (s *sessionServiceStub) MarkInProgress(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
	return s.transition(ctx, caller, id)
}

func (s *sessionServiceStub) AddReview(ctx context.Context, caller domain.Caller, input usecase.AddReviewInput) (*domain.Session, error) {
	return s.reviewFn(ctx, caller, input)
}

func (s *sessionServiceStub) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
	return s.transition(ctx, caller, id)
}

func (s *sessionServiceStub) ListByParticipant(ctx context.Context, caller domain.Caller, input usecase.ListSessionsInput) ([]*domain.Session, error) {
	return s.listFn(ctx, caller, input)
}

// retryOnce re-runs an operation a single time after a conflict.
type retryOnce struct{}

func (retryOnce) Retry(ctx context.Context, operation func() error) error {
	if err := operation(); err == nil || !domain.IsConflict(err) {
		return err
	}
	return operation()
}

var learner = domain.Caller{ID: "learner-1", Role: domain.RoleParticipant}

func sampleSession(status domain.SessionStatus) *domain.Session {
	at := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Session{
		ID:              "session-1",
		TeacherID:       "teacher-1",
		LearnerID:       learner.ID,
		Skill:           "go",
		ScheduledAt:     at,
		DurationMinutes: 60,
		CreditCost:      decimal.NewFromInt(2),
		Status:          status,
		StatusHistory: []domain.StatusChange{
			{To: domain.SessionPending, Actor: learner.ID, At: at.Add(-time.Hour)},
		},
	}
}

// newRequest builds a request carrying caller and the chi id parameter.
func newRequest(method, target string, body any, caller *domain.Caller, id string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)

	ctx := req.Context()
	if caller != nil {
		ctx = middleware.WithCaller(ctx, *caller)
	}
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestSessionHandler_Book_DefaultsLearnerToCaller(t *testing.T) {
	var captured usecase.BookInput
	h := NewSessionHandler(&sessionServiceStub{
		bookFn: func(ctx context.Context, caller domain.Caller, input usecase.BookInput) (*domain.Session, error) {
			captured = input
			return sampleSession(domain.SessionPending), nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Book(rec, newRequest(http.MethodPost, "/sessions", dto.BookSessionRequest{
		TeacherID:       "teacher-1",
		Skill:           "go",
		ScheduledAt:     time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
	}, &learner, ""))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.LearnerID != learner.ID || captured.TeacherID != "teacher-1" {
		t.Fatalf("unexpected input %+v", captured)
	}

	var resp dto.SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "pending" || len(resp.History) != 1 || !resp.CreditCost.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSessionHandler_Book_ValidationError(t *testing.T) {
	h := NewSessionHandler(&sessionServiceStub{
		bookFn: func(ctx context.Context, caller domain.Caller, input usecase.BookInput) (*domain.Session, error) {
			t.Fatalf("use case should not be called")
			return nil, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Book(rec, newRequest(http.MethodPost, "/sessions", dto.BookSessionRequest{
		TeacherID:       "teacher-1",
		Skill:           "go",
		ScheduledAt:     time.Now(),
		DurationMinutes: 5,
	}, &learner, ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSessionHandler_RequiresCaller(t *testing.T) {
	h := NewSessionHandler(&sessionServiceStub{}, nil)

	rec := httptest.NewRecorder()
	h.Confirm(rec, newRequest(http.MethodPost, "/sessions/session-1/confirm", nil, nil, "session-1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionHandler_Confirm_InsufficientFunds(t *testing.T) {
	h := NewSessionHandler(&sessionServiceStub{
		transition: func(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
			return nil, &domain.InsufficientFundsError{Have: decimal.NewFromInt(1), Need: decimal.NewFromInt(2)}
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Confirm(rec, newRequest(http.MethodPost, "/sessions/session-1/confirm", nil, &learner, "session-1"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestSessionHandler_Complete_RetriesConflict(t *testing.T) {
	calls := 0
	h := NewSessionHandler(&sessionServiceStub{
		transition: func(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
			calls++
			if calls == 1 {
				return nil, domain.ErrLeaseHeld
			}
			return sampleSession(domain.SessionCompleted), nil
		},
	}, retryOnce{})

	rec := httptest.NewRecorder()
	h.Complete(rec, newRequest(http.MethodPost, "/sessions/session-1/complete", nil, &learner, "session-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d: %s", rec.Code, rec.Body.String())
	}
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
}

func TestSessionHandler_Complete_ConflictAfterRetry(t *testing.T) {
	h := NewSessionHandler(&sessionServiceStub{
		transition: func(ctx context.Context, caller domain.Caller, id string) (*domain.Session, error) {
			return nil, domain.ErrLeaseHeld
		},
	}, retryOnce{})

	rec := httptest.NewRecorder()
	h.Complete(rec, newRequest(http.MethodPost, "/sessions/session-1/complete", nil, &learner, "session-1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestSessionHandler_Cancel_EmptyBody(t *testing.T) {
	var reason = "unset"
	h := NewSessionHandler(&sessionServiceStub{
		cancelFn: func(ctx context.Context, caller domain.Caller, id, r string) (*domain.Session, error) {
			reason = r
			return sampleSession(domain.SessionCancelled), nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Cancel(rec, newRequest(http.MethodPost, "/sessions/session-1/cancel", nil, &learner, "session-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if reason != "" {
		t.Fatalf("expected empty reason, got %q", reason)
	}
}

func TestSessionHandler_Review(t *testing.T) {
	var captured usecase.AddReviewInput
	h := NewSessionHandler(&sessionServiceStub{
		reviewFn: func(ctx context.Context, caller domain.Caller, input usecase.AddReviewInput) (*domain.Session, error) {
			captured = input
			s := sampleSession(domain.SessionCompleted)
			s.Review = &domain.Review{Rating: input.Rating, Comment: input.Comment}
			return s, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Review(rec, newRequest(http.MethodPost, "/sessions/session-1/review", dto.ReviewRequest{Rating: 5, Comment: "great"}, &learner, "session-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.SessionID != "session-1" || captured.Rating != 5 {
		t.Fatalf("unexpected input %+v", captured)
	}

	rec = httptest.NewRecorder()
	h.Review(rec, newRequest(http.MethodPost, "/sessions/session-1/review", dto.ReviewRequest{Rating: 9}, &learner, "session-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range rating, got %d", rec.Code)
	}
}

func TestSessionHandler_ListByParticipant(t *testing.T) {
	var captured usecase.ListSessionsInput
	h := NewSessionHandler(&sessionServiceStub{
		listFn: func(ctx context.Context, caller domain.Caller, input usecase.ListSessionsInput) ([]*domain.Session, error) {
			captured = input
			return []*domain.Session{sampleSession(domain.SessionPending)}, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.ListByParticipant(rec, newRequest(http.MethodGet, "/participants/learner-1/sessions?limit=5&offset=10", nil, &learner, "learner-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.ParticipantID != "learner-1" || captured.Limit != 5 || captured.Offset != 10 {
		t.Fatalf("unexpected input %+v", captured)
	}

	var resp dto.ListSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(resp.Sessions))
	}
}
