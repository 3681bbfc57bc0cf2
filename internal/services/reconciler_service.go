package services

import (
	"context"
	"log/slog"

	"nestegg/internal/storage"
)

// Reconciler audits the maintained installment counters against the ledger
// scan they replaced. The counter is updated transactionally with every
// payment, so drift means a bug or manual data surgery; the ledger wins.
type Reconciler struct {
	repo *storage.SQLiteRepository
}

func NewReconciler(repo *storage.SQLiteRepository) *Reconciler {
	return &Reconciler{repo: repo}
}

// ReconcileInstallments sweeps every plan, compares paid_count with the
// number of ledger entries referencing the plan, and repairs mismatches.
// Returns the number of repaired counters.
func (r *Reconciler) ReconcileInstallments(ctx context.Context) (int, error) {
	plans, err := r.repo.Queries().AllPlanIDs(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for planID, userID := range plans {
		err := r.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
			counted, err := q.CountByInstallment(ctx, planID)
			if err != nil {
				return err
			}
			maintained, err := q.PlanPaidCount(ctx, planID)
			if err != nil {
				return err
			}
			if counted == maintained {
				return nil
			}

			slog.WarnContext(ctx, "Installment counter drift",
				"plan_id", planID,
				"user_id", userID,
				"maintained", maintained,
				"ledger", counted)
			repaired++
			return q.SetPlanPaidCount(ctx, planID, counted)
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile plan",
				"plan_id", planID, "error", err)
			continue
		}
	}

	slog.InfoContext(ctx, "Installment reconciliation complete",
		"plans_checked", len(plans),
		"repaired", repaired)
	return repaired, nil
}
