package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/participants?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/participants?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestParsePageClamps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions?limit=5000&offset=-3", nil)
	limit, offset := parsePage(req)
	if limit != maxPageSize || offset != 0 {
		t.Fatalf("expected clamped page (%d, 0), got (%d, %d)", maxPageSize, limit, offset)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions?limit=0", nil)
	if limit, _ := parsePage(req); limit != defaultPageSize {
		t.Fatalf("expected default page size, got %d", limit)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid schedule", fmt.Errorf("book: %w", domain.ErrInvalidSchedule), http.StatusBadRequest},
		{"insufficient funds", &domain.InsufficientFundsError{Have: decimal.NewFromInt(3), Need: decimal.NewFromInt(4)}, http.StatusUnprocessableEntity},
		{"session not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"participant not found", domain.ErrParticipantNotFound, http.StatusNotFound},
		{"not authorized", domain.ErrNotAuthorized, http.StatusForbidden},
		{"expired token", domain.ErrExpiredToken, http.StatusUnauthorized},
		{"lease held", domain.ErrLeaseHeld, http.StatusConflict},
		{"stale version", domain.ErrConcurrentModification, http.StatusConflict},
		{"already processed", domain.ErrAlreadyProcessed, http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"out of window", domain.ErrOutOfWindow, http.StatusConflict},
		{"schedule conflict", domain.ErrScheduleConflict, http.StatusConflict},
		{"already reviewed", domain.ErrAlreadyReviewed, http.StatusConflict},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteDomainError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeDomainError(rr, "failed to confirm session", &domain.InsufficientFundsError{
		Have: decimal.NewFromInt(3),
		Need: decimal.NewFromInt(4),
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "failed to confirm session" || resp.Message != "insufficient credits: have 3.0, need 4.0" {
		t.Fatalf("unexpected error body %+v", resp)
	}
}
