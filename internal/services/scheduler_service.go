package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nestegg/internal/core"
	"nestegg/internal/storage"
)

// SchedulerService tracks recurring obligations and installment plans and
// turns "pay now" actions into ledger entries.
type SchedulerService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

func NewSchedulerService(repo *storage.SQLiteRepository, publisher EventPublisher) *SchedulerService {
	return &SchedulerService{repo: repo, publisher: publisher}
}

// RegisterPlan stores a new installment plan. PaidOffset carries payments
// imported from legacy data and defaults to zero.
func (s *SchedulerService) RegisterPlan(ctx context.Context, plan core.InstallmentPlan) (core.InstallmentPlan, error) {
	if err := plan.Validate(); err != nil {
		return core.InstallmentPlan{}, err
	}
	if err := s.repo.Queries().CreatePlan(ctx, &plan); err != nil {
		return core.InstallmentPlan{}, err
	}
	slog.InfoContext(ctx, "Installment plan registered",
		"user_id", plan.UserID,
		"plan_id", plan.ID,
		"total_installments", plan.TotalInstallments)
	return plan, nil
}

// PaymentReceipt describes one committed installment payment.
type PaymentReceipt struct {
	Entry  core.LedgerEntry
	Number int
	Total  int
	Status core.PlanStatus
}

// PayInstallment commits the next installment of a plan. There is no
// deduplication beyond the exhaustion check: calling twice records two
// payments, so callers must not retry blindly.
func (s *SchedulerService) PayInstallment(ctx context.Context, userID, planID int64) (PaymentReceipt, error) {
	var receipt PaymentReceipt
	err := s.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
		row, err := q.PlanByID(ctx, userID, planID)
		if err != nil {
			return err
		}

		next := row.Paid() + 1
		if next > row.Plan.TotalInstallments {
			return core.ErrPlanExhausted
		}

		entry := core.LedgerEntry{
			UserID:         userID,
			Kind:           core.KindExpense,
			Amount:         row.Plan.InstallmentAmount,
			OccurredAt:     time.Now().UTC(),
			CategoryID:     row.Plan.CategoryID,
			Note:           fmt.Sprintf("%s (%d/%d)", row.Plan.Name, next, row.Plan.TotalInstallments),
			InstallmentRef: &row.Plan.ID,
		}
		if err := q.AppendEntry(ctx, &entry); err != nil {
			return err
		}
		if err := q.IncrementPlanPaid(ctx, userID, planID); err != nil {
			return err
		}

		receipt = PaymentReceipt{
			Entry:  entry,
			Number: next,
			Total:  row.Plan.TotalInstallments,
			Status: row.Plan.StatusFor(next),
		}
		return nil
	})
	if err != nil {
		return PaymentReceipt{}, err
	}

	slog.InfoContext(ctx, "Installment paid",
		"user_id", userID,
		"plan_id", planID,
		"number", receipt.Number,
		"total", receipt.Total,
		"status", string(receipt.Status))

	s.publish(ctx, receipt.Entry)
	return receipt, nil
}

// CreateRecurring stores a new recurring expense.
func (s *SchedulerService) CreateRecurring(ctx context.Context, expense core.RecurringExpense) (core.RecurringExpense, error) {
	if err := expense.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	if err := s.repo.Queries().CreateRecurring(ctx, &expense); err != nil {
		return core.RecurringExpense{}, err
	}
	return expense, nil
}

// PayRecurring appends an expense entry for the obligation. Recurring
// expenses have no terminal state; they can be paid for as long as they
// exist, active or not.
func (s *SchedulerService) PayRecurring(ctx context.Context, userID, expenseID int64) (core.LedgerEntry, error) {
	var entry core.LedgerEntry
	err := s.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
		expense, err := q.RecurringByID(ctx, userID, expenseID)
		if err != nil {
			return err
		}

		entry = core.LedgerEntry{
			UserID:     userID,
			Kind:       core.KindExpense,
			Amount:     expense.Amount,
			OccurredAt: time.Now().UTC(),
			CategoryID: expense.CategoryID,
			Note:       expense.Name,
		}
		return q.AppendEntry(ctx, &entry)
	})
	if err != nil {
		return core.LedgerEntry{}, err
	}

	slog.InfoContext(ctx, "Recurring expense paid",
		"user_id", userID,
		"expense_id", expenseID,
		"amount_cents", entry.Amount.Cents)

	s.publish(ctx, entry)
	return entry, nil
}

// ToggleActive flips the active flag. Inactive expenses drop out of
// commitment totals but keep their payment history.
func (s *SchedulerService) ToggleActive(ctx context.Context, userID, expenseID int64) (bool, error) {
	active, err := s.repo.Queries().ToggleRecurringActive(ctx, userID, expenseID)
	if err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Recurring expense toggled",
		"user_id", userID,
		"expense_id", expenseID,
		"is_active", active)
	return active, nil
}

func (s *SchedulerService) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringExpense, error) {
	return s.repo.Queries().ListRecurring(ctx, userID)
}

func (s *SchedulerService) ListPlans(ctx context.Context, userID int64) ([]storage.PlanRow, error) {
	return s.repo.Queries().ListPlans(ctx, userID)
}

// Commitments is the read-only monthly-equivalent cost view: active
// recurring expenses normalized to a month, plus the installment amount of
// every plan currently in progress.
type Commitments struct {
	Recurring    core.Money
	Installments core.Money
	Total        core.Money
}

func (s *SchedulerService) MonthlyCommitments(ctx context.Context, userID int64) (Commitments, error) {
	q := s.repo.Queries()

	recurring, err := q.ListRecurring(ctx, userID)
	if err != nil {
		return Commitments{}, err
	}
	var c Commitments
	for _, r := range recurring {
		if !r.IsActive {
			continue
		}
		c.Recurring.Cents += r.MonthlyEquivalent().Cents
	}

	plans, err := q.ListPlans(ctx, userID)
	if err != nil {
		return Commitments{}, err
	}
	for _, p := range plans {
		if p.Status() != core.PlanActive {
			continue
		}
		c.Installments.Cents += p.Plan.InstallmentAmount.Cents
	}

	c.Total.Cents = c.Recurring.Cents + c.Installments.Cents
	return c, nil
}

func (s *SchedulerService) publish(ctx context.Context, entry core.LedgerEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"entry_id", entry.ID, "error", err)
	}
}
