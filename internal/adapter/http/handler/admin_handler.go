package handler

import (
	"context"
	"net/http"

	"github.com/iho/timebank/internal/adapter/http/dto"
	"github.com/iho/timebank/internal/usecase"
)

// ReconciliationService defines the behavior needed by AdminHandler.
type ReconciliationService interface {
	Check(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// AdminHandler serves administrative reports.
type AdminHandler struct {
	reconciliationUC ReconciliationService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reconciliationUC ReconciliationService) *AdminHandler {
	return &AdminHandler{reconciliationUC: reconciliationUC}
}

// Consistency runs the ledger consistency check. An inconsistent ledger is
// reported with 409 so monitors can alert on the status code alone.
func (h *AdminHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliationUC.Check(r.Context())
	if err != nil {
		writeDomainError(w, "failed to check ledger", err)
		return
	}

	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ReconciliationFromUseCase(report))
}
