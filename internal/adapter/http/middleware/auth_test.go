package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/infrastructure/auth"
	"github.com/iho/timebank/internal/infrastructure/metrics"
)

func captureCaller(t *testing.T, called *bool, want domain.Caller) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		got, ok := CallerFromContext(r.Context())
		if !ok {
			t.Fatalf("expected caller in context")
		}
		if got != want {
			t.Fatalf("expected caller %+v, got %+v", want, got)
		}
	})
}

func TestAuthenticator_ValidToken(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Hour)
	caller := domain.Caller{ID: "learner-1", Role: domain.RoleParticipant}
	token, err := manager.Generate(caller)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	var called bool
	NewAuthenticator(manager, true, nil).Wrap(captureCaller(t, &called, caller)).ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected next handler to be called, got %d", rr.Code)
	}
}

func TestAuthenticator_Rejects(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Hour)
	other, err := auth.NewJWTManager("other", time.Hour).Generate(domain.Caller{ID: "x", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"missing header", "", "missing"},
		{"wrong scheme", "Basic abc", "malformed"},
		{"empty token", "Bearer ", "malformed"},
		{"foreign signature", "Bearer " + other, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			NewAuthenticator(manager, true, m).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not be called")
			})).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if got := counterValue(t, m.AuthFailures.WithLabelValues(tt.reason)); got != 1 {
				t.Fatalf("expected one %s failure, got %v", tt.reason, got)
			}
		})
	}
}

func TestAuthenticator_DisabledUsesHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(CallerIDHeader, "admin-1")
	req.Header.Set(CallerRoleHeader, "admin")
	rr := httptest.NewRecorder()

	var called bool
	want := domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}
	NewAuthenticator(nil, false, nil).Wrap(captureCaller(t, &called, want)).ServeHTTP(rr, req)
	if !called {
		t.Fatalf("expected next handler to be called")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(CallerIDHeader, "p-1")
	req.Header.Set(CallerRoleHeader, "superuser")
	called = false
	want = domain.Caller{ID: "p-1", Role: domain.RoleParticipant}
	NewAuthenticator(nil, false, nil).Wrap(captureCaller(t, &called, want)).ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("expected unknown role to fall back to participant")
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		caller   *domain.Caller
		expected int
	}{
		{"no caller", nil, http.StatusUnauthorized},
		{"participant", &domain.Caller{ID: "p", Role: domain.RoleParticipant}, http.StatusForbidden},
		{"admin", &domain.Caller{ID: "a", Role: domain.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/credits", nil)
			if tt.caller != nil {
				req = req.WithContext(WithCaller(req.Context(), *tt.caller))
			}
			rr := httptest.NewRecorder()

			RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}
