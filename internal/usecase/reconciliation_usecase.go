package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationUseCase checks the ledger's global invariants.
type ReconciliationUseCase struct {
	ledgerRepo LedgerRepository
	now        func() time.Time
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(ledgerRepo LedgerRepository) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		ledgerRepo: ledgerRepo,
		now:        time.Now,
	}
}

// ReconciliationReport is the outcome of a consistency check.
type ReconciliationReport struct {
	TotalBalance     decimal.Decimal
	TotalSigned      decimal.Decimal
	Difference       decimal.Decimal
	UnpairedDebits   int
	NegativeAccounts int
	Consistent       bool
	CheckedAt        time.Time
}

// Check compares the sum of all balances with the sum of all signed ledger
// entries, and counts debits without a credit leg and negative balances.
func (uc *ReconciliationUseCase) Check(ctx context.Context) (*ReconciliationReport, error) {
	totals, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	diff := totals.TotalBalance.Sub(totals.TotalSigned)
	return &ReconciliationReport{
		TotalBalance:     totals.TotalBalance,
		TotalSigned:      totals.TotalSigned,
		Difference:       diff,
		UnpairedDebits:   totals.UnpairedDebits,
		NegativeAccounts: totals.NegativeAccounts,
		Consistent:       diff.IsZero() && totals.UnpairedDebits == 0 && totals.NegativeAccounts == 0,
		CheckedAt:        uc.now().UTC(),
	}, nil
}

// CheckLedgerConsistency returns an error describing the first violated invariant.
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) error {
	report, err := uc.Check(ctx)
	if err != nil {
		return err
	}

	switch {
	case !report.Difference.IsZero():
		return fmt.Errorf(
			"ledger inconsistency detected: balances=%s entries=%s difference=%s",
			report.TotalBalance.String(),
			report.TotalSigned.String(),
			report.Difference.String(),
		)
	case report.UnpairedDebits > 0:
		return fmt.Errorf("ledger inconsistency detected: %d debits without a credit leg", report.UnpairedDebits)
	case report.NegativeAccounts > 0:
		return fmt.Errorf("ledger inconsistency detected: %d accounts with a negative balance", report.NegativeAccounts)
	}

	return nil
}
