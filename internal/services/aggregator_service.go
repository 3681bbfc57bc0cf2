package services

import (
	"context"

	"nestegg/internal/core"
	"nestegg/internal/storage"
)

// missingCategoryName is shown when a budget references a category that was
// removed; the reference is non-owning and never cascades.
const missingCategoryName = "(category removed)"

// Aggregator computes the read-only views consumed by the presentation
// layer: per-period spend-vs-limit and reserve progress.
type Aggregator struct {
	repo *storage.SQLiteRepository
}

func NewAggregator(repo *storage.SQLiteRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// BudgetUsageLine is one category's limit against its expense total for the
// period. Threshold evaluation (80% warning, 100% critical) belongs to the
// alerting consumer, not here.
type BudgetUsageLine struct {
	CategoryID   int64
	CategoryName string
	Limit        core.Money
	Spent        core.Money
}

func (a *Aggregator) BudgetUsage(ctx context.Context, userID int64, year, month int) ([]BudgetUsageLine, error) {
	q := a.repo.Queries()

	budgets, err := q.BudgetsForPeriod(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}
	totals, err := q.ExpenseTotalsByCategory(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}

	lines := make([]BudgetUsageLine, 0, len(budgets))
	for _, b := range budgets {
		name := b.CategoryName
		if name == "" {
			name = missingCategoryName
		}
		lines = append(lines, BudgetUsageLine{
			CategoryID:   b.CategoryID,
			CategoryName: name,
			Limit:        b.Limit,
			Spent:        core.Money{Cents: totals[b.CategoryID]},
		})
	}
	return lines, nil
}

// ReserveProgress is the reserve balance against its target. Pct is nil
// when no target is set.
type ReserveProgress struct {
	Current      core.Money
	TargetMonths int
	Target       *core.Money
	Pct          *float64
}

func (a *Aggregator) ReserveProgress(ctx context.Context, userID int64) (ReserveProgress, error) {
	reserve, err := a.repo.Queries().ReserveFor(ctx, userID)
	if err != nil {
		return ReserveProgress{}, err
	}

	progress := ReserveProgress{
		Current:      reserve.Current,
		TargetMonths: reserve.TargetMonths,
		Target:       reserve.Target,
	}
	if reserve.Target != nil && reserve.Target.Cents > 0 {
		pct := float64(reserve.Current.Cents) / float64(reserve.Target.Cents)
		if pct > 1 {
			pct = 1
		}
		progress.Pct = &pct
	}
	return progress, nil
}

// GoalBalances lists the user's goals for the dashboard.
func (a *Aggregator) GoalBalances(ctx context.Context, userID int64) ([]core.Goal, error) {
	return a.repo.Queries().ListGoals(ctx, userID)
}
