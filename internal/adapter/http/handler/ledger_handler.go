package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/usecase"
)

// LedgerService defines the behavior needed by LedgerHandler.
type LedgerService interface {
	Credit(ctx context.Context, input usecase.CreditInput) (*domain.Transaction, error)
	Reverse(ctx context.Context, caller domain.Caller, input usecase.ReverseInput) (*domain.TransferResult, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, input usecase.ListTransactionsInput) ([]*domain.Transaction, error)
	Stream(ctx context.Context, afterID string, limit int) ([]domain.TransactionStreamEvent, error)
}

// LedgerHandler handles ledger HTTP requests.
type LedgerHandler struct {
	ledgerUC LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC}
}

// GetTransaction retrieves a ledger entry by ID.
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "transaction ID") {
		return
	}

	entry, err := h.ledgerUC.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(entry))
}

// ListByAccount lists the entries of an account, newest first.
func (h *LedgerHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "account ID") {
		return
	}
	if !caller.Is(id) {
		writeDomainError(w, "failed to list transactions", domain.ErrNotAuthorized)
		return
	}
	limit, offset := parsePage(r)

	entries, err := h.ledgerUC.ListTransactions(r.Context(), usecase.ListTransactionsInput{
		AccountID: id,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListTransactionsResponse{
		Transactions: dto.TransactionsFromDomain(entries),
	})
}

// Stream pages through the transaction stream after a cursor.
func (h *LedgerHandler) Stream(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePage(r)
	after := r.URL.Query().Get("after")

	events, err := h.ledgerUC.Stream(r.Context(), after, limit)
	if err != nil {
		writeDomainError(w, "failed to read transaction stream", err)
		return
	}

	resp := dto.StreamResponse{Events: events}
	if resp.Events == nil {
		resp.Events = []domain.TransactionStreamEvent{}
	}
	if len(events) == limit {
		resp.Next = events[len(events)-1].TransactionID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Credit issues credits from the system to an account.
func (h *LedgerHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	entry, err := h.ledgerUC.Credit(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to credit account", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(entry))
}

// Reverse undoes a transfer with an opposite one.
func (h *LedgerHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !requireParam(w, id, "transaction ID") {
		return
	}

	var req dto.ReverseRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	result, err := h.ledgerUC.Reverse(r.Context(), caller, req.ToUseCaseInput(id))
	if err != nil {
		writeDomainError(w, "failed to reverse transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransferFromDomain(result))
}
