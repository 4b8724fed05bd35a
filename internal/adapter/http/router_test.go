package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/adapter/http/handler"
	apimiddleware "github.com/iho/timebank/internal/adapter/http/middleware"
	"github.com/iho/timebank/internal/adapter/repository/memory"
	"github.com/iho/timebank/internal/adapter/repository/postgres"
	"github.com/iho/timebank/internal/infrastructure/metrics"
	"github.com/iho/timebank/internal/usecase"
)

// newTestRouter wires the real use cases over the memory store with
// header-based callers.
func newTestRouter(t *testing.T, opts ...func(*RouterConfig)) http.Handler {
	t.Helper()

	store := memory.NewStore()
	txManager := memory.NewTxManager(store)
	accountRepo := memory.NewAccountRepository(store)
	participantRepo := memory.NewParticipantRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)
	idGen := postgres.NewULIDGenerator()
	logger := zerolog.Nop()

	ledgerUC, err := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:       txManager,
		AccountRepo:     accountRepo,
		TransactionRepo: memory.NewTransactionRepository(store),
		OutboxRepo:      outboxRepo,
		IDGen:           idGen,
		Logger:          logger,
		// Single writer, so entries can be streamed as soon as they commit.
		StreamDelay: time.Nanosecond,
	})
	require.NoError(t, err)

	accountUC := usecase.NewAccountUseCase(usecase.AccountConfig{
		TxManager:       txManager,
		AccountRepo:     accountRepo,
		ParticipantRepo: participantRepo,
		OutboxRepo:      outboxRepo,
		Ledger:          ledgerUC,
		IDGen:           idGen,
		Logger:          logger,
		InitialGrant:    decimal.NewFromInt(10),
	})

	sessionUC, err := usecase.NewSessionUseCase(usecase.SessionConfig{
		TxManager:       txManager,
		SessionRepo:     memory.NewSessionRepository(store),
		ParticipantRepo: participantRepo,
		AccountRepo:     accountRepo,
		OutboxRepo:      outboxRepo,
		Ledger:          ledgerUC,
		ScheduleLocker:  memory.NewScheduleLocker(store),
		IDGen:           idGen,
		Logger:          logger,
	})
	require.NoError(t, err)

	roomUC := usecase.NewRoomUseCase(sessionUC, memory.NewRoomRegistry(store), logger, time.Hour)
	registry := prometheus.NewRegistry()

	cfg := RouterConfig{
		ParticipantHandler: handler.NewParticipantHandler(accountUC),
		SessionHandler:     handler.NewSessionHandler(sessionUC, postgres.NewRetrier(logger, postgres.WithMaxRetries(1))),
		LedgerHandler:      handler.NewLedgerHandler(ledgerUC),
		RoomHandler:        handler.NewRoomHandler(roomUC),
		AdminHandler:       handler.NewAdminHandler(usecase.NewReconciliationUseCase(memory.NewLedgerRepository(store))),
		HealthHandler:      handler.NewHealthHandler(nil),
		Authenticator:      apimiddleware.NewAuthenticator(nil, false, nil),
		Idempotency:        apimiddleware.NewIdempotencyMiddleware(memory.NewIdempotencyStore(store), time.Hour, logger),
		Metrics:            metrics.New(registry),
		Gatherer:           registry,
		Logger:             logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewRouter(cfg)
}

type apiCall struct {
	method  string
	path    string
	body    any
	caller  string
	role    string
	headers map[string]string
}

func do(t *testing.T, router http.Handler, call apiCall, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if call.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(call.body))
	}
	req := httptest.NewRequest(call.method, call.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if call.caller != "" {
		req.Header.Set(apimiddleware.CallerIDHeader, call.caller)
		req.Header.Set(apimiddleware.CallerRoleHeader, call.role)
	}
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func register(t *testing.T, router http.Handler, name string, skills ...string) dto.ProfileResponse {
	t.Helper()
	var profile dto.ProfileResponse
	rec := do(t, router, apiCall{
		method: http.MethodPost,
		path:   "/api/v1/participants/",
		body: dto.RegisterParticipantRequest{
			DisplayName: name,
			Skills:      skills,
			HourlyRate:  decimal.NewFromInt(2),
		},
		caller: "admin-1",
		role:   "admin",
	}, &profile)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return profile
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timebank_http_requests_total")
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	router := newTestRouter(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = apimiddleware.NewRateLimiter(1, 1, nil)
	})

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := newTestRouter(t)

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /api/v1/me",
		"POST /api/v1/participants/",
		"GET /api/v1/participants/{id}",
		"GET /api/v1/accounts/{id}/transactions",
		"POST /api/v1/sessions/",
		"POST /api/v1/sessions/{id}/confirm",
		"POST /api/v1/sessions/{id}/complete",
		"POST /api/v1/sessions/{id}/room",
		"GET /api/v1/transactions/stream",
		"POST /api/v1/admin/credits",
		"GET /api/v1/admin/consistency",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func TestNewRouter_BookingFlow(t *testing.T) {
	router := newTestRouter(t)

	teacher := register(t, router, "Ada", "go")
	learner := register(t, router, "Linus")
	assert.True(t, learner.Account.Balance.Equal(decimal.NewFromInt(10)))

	book := apiCall{
		method: http.MethodPost,
		path:   "/api/v1/sessions/",
		body: dto.BookSessionRequest{
			TeacherID:       teacher.Participant.ID,
			Skill:           "go",
			ScheduledAt:     time.Now().Add(48 * time.Hour).Truncate(time.Minute),
			DurationMinutes: 90,
		},
		caller:  learner.Participant.ID,
		role:    "participant",
		headers: map[string]string{apimiddleware.IdempotencyKeyHeader: "book-1"},
	}

	var session dto.SessionResponse
	rec := do(t, router, book, &session)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", session.Status)
	assert.True(t, session.CreditCost.Equal(decimal.NewFromInt(3)))

	// The same key replays the first response instead of booking twice.
	var replayed dto.SessionResponse
	rec = do(t, router, book, &replayed)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(apimiddleware.IdempotencyReplayHeader))
	assert.Equal(t, session.ID, replayed.ID)

	// Only the teacher confirms.
	rec = do(t, router, apiCall{
		method: http.MethodPost,
		path:   "/api/v1/sessions/" + session.ID + "/confirm",
		caller: learner.Participant.ID,
		role:   "participant",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var confirmed dto.SessionResponse
	rec = do(t, router, apiCall{
		method: http.MethodPost,
		path:   "/api/v1/sessions/" + session.ID + "/confirm",
		caller: teacher.Participant.ID,
		role:   "participant",
	}, &confirmed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.Len(t, confirmed.History, 2)

	// A second confirm finds the session in the wrong state.
	rec = do(t, router, apiCall{
		method: http.MethodPost,
		path:   "/api/v1/sessions/" + session.ID + "/confirm",
		caller: teacher.Participant.ID,
		role:   "participant",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var sessions dto.ListSessionsResponse
	rec = do(t, router, apiCall{
		method: http.MethodGet,
		path:   "/api/v1/participants/" + learner.Participant.ID + "/sessions",
		caller: learner.Participant.ID,
		role:   "participant",
	}, &sessions)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sessions.Sessions, 1)
}

func TestNewRouter_AdminRoutes(t *testing.T) {
	router := newTestRouter(t)
	learner := register(t, router, "Linus")

	credit := apiCall{
		method: http.MethodPost,
		path:   "/api/v1/admin/credits",
		body: dto.CreditRequest{
			AccountID: learner.Participant.ID,
			Amount:    decimal.NewFromInt(5),
			Kind:      "bonus",
		},
		caller: learner.Participant.ID,
		role:   "participant",
	}
	rec := do(t, router, credit, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	credit.caller, credit.role = "admin-1", "admin"
	rec = do(t, router, credit, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var account dto.AccountResponse
	rec = do(t, router, apiCall{
		method: http.MethodGet,
		path:   "/api/v1/accounts/" + learner.Participant.ID,
		caller: learner.Participant.ID,
		role:   "participant",
	}, &account)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(15)))

	var report dto.ReconciliationResponse
	rec = do(t, router, apiCall{
		method: http.MethodGet,
		path:   "/api/v1/admin/consistency",
		caller: "admin-1",
		role:   "admin",
	}, &report)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, report.Consistent)

	var stream dto.StreamResponse
	rec = do(t, router, apiCall{
		method: http.MethodGet,
		path:   "/api/v1/transactions/stream",
		caller: "relay",
		role:   "service",
	}, &stream)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, stream.Events, 2)
}

func TestNewRouter_RequiresCaller(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, apiCall{method: http.MethodGet, path: "/api/v1/me"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
