package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/infrastructure/auth"
	"github.com/iho/timebank/internal/infrastructure/metrics"
)

const (
	// CallerIDHeader names the caller when authentication is disabled.
	CallerIDHeader = "X-Caller-ID"
	// CallerRoleHeader sets the caller's role when authentication is disabled.
	CallerRoleHeader = "X-Caller-Role"
)

type callerKey struct{}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext extracts the authenticated caller from context.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Caller)
	return caller, ok
}

// Authenticator resolves the caller of each request.
type Authenticator struct {
	jwtManager *auth.JWTManager
	enabled    bool
	metrics    *metrics.Metrics
}

// NewAuthenticator creates an Authenticator. With enabled false the caller
// is taken from the X-Caller-ID and X-Caller-Role headers, for local
// development only. m may be nil.
func NewAuthenticator(jwtManager *auth.JWTManager, enabled bool, m *metrics.Metrics) *Authenticator {
	return &Authenticator{jwtManager: jwtManager, enabled: enabled, metrics: m}
}

// Wrap requires a valid bearer token and stores its caller in the context.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			if caller, ok := headerCaller(r); ok {
				r = r.WithContext(WithCaller(r.Context(), caller))
			}
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.reject(w, "missing", "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			a.reject(w, "malformed", "invalid authorization header format")
			return
		}

		claims, err := a.jwtManager.Verify(token)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, domain.ErrExpiredToken) {
				reason = "expired"
			}
			a.reject(w, reason, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.Caller())))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, reason, details string) {
	if a.metrics != nil {
		a.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", details)
}

func headerCaller(r *http.Request) (domain.Caller, bool) {
	id := r.Header.Get(CallerIDHeader)
	if id == "" {
		return domain.Caller{}, false
	}
	role := domain.Role(r.Header.Get(CallerRoleHeader))
	if !role.IsValid() {
		role = domain.RoleParticipant
	}
	return domain.Caller{ID: id, Role: role}, true
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", domain.ErrUnauthorized.Error())
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient permissions", domain.ErrNotAuthorized.Error())
		})
	}
}
