// Package services implements the business rules of the allocation and
// ledger engine on top of the storage layer. Every mutating operation runs
// inside one user-scoped transaction; ledger events are published only after
// a successful commit, and publish failures never fail the request.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nestegg/internal/core"
	"nestegg/internal/storage"
)

// EventPublisher pushes committed ledger entries to the external
// notification channel. Implementations must be safe to call concurrently.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, entry core.LedgerEntry) error
}

// AllocationService applies the pay-yourself-first split to income events.
type AllocationService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

func NewAllocationService(repo *storage.SQLiteRepository, publisher EventPublisher) *AllocationService {
	return &AllocationService{repo: repo, publisher: publisher}
}

// CommitIncome validates and stores an income event, routes the savings
// portion to the emergency reserve and records the contribution entry, all
// in one transaction.
func (s *AllocationService) CommitIncome(ctx context.Context, income core.IncomeEvent) (core.AllocationResult, core.IncomeEvent, error) {
	if err := income.Validate(); err != nil {
		return core.AllocationResult{}, core.IncomeEvent{}, err
	}

	settings, err := s.repo.Queries().SettingsFor(ctx, income.UserID)
	if err != nil {
		return core.AllocationResult{}, core.IncomeEvent{}, err
	}

	result, err := core.Allocate(income, settings.DefaultPercent)
	if err != nil {
		return core.AllocationResult{}, core.IncomeEvent{}, err
	}

	var contribution core.LedgerEntry
	err = s.repo.InUserTx(ctx, income.UserID, func(q *storage.Queries) error {
		if err := q.CreateIncome(ctx, &income); err != nil {
			return err
		}
		if result.Savings.Cents == 0 {
			return nil
		}
		if err := q.AddToReserve(ctx, income.UserID, result.Savings.Cents); err != nil {
			return err
		}
		contribution = core.LedgerEntry{
			UserID:     income.UserID,
			Kind:       core.KindReserveContribution,
			Amount:     result.Savings,
			OccurredAt: time.Now().UTC(),
			Note:       fmt.Sprintf("income %d/%d", income.Month, income.Year),
			IncomeRef:  &income.ID,
		}
		return q.AppendEntry(ctx, &contribution)
	})
	if err != nil {
		return core.AllocationResult{}, core.IncomeEvent{}, err
	}

	slog.InfoContext(ctx, "Income committed",
		"user_id", income.UserID,
		"income_id", income.ID,
		"amount_cents", income.Amount.Cents,
		"savings_cents", result.Savings.Cents,
		"spendable_cents", result.Spendable.Cents)

	if contribution.ID != 0 {
		s.publish(ctx, contribution)
	}
	return result, income, nil
}

// DeleteIncome removes the income event and reverses its reserve
// contribution with an offsetting entry; the ledger itself stays
// append-only. Fails with ErrInsufficientBalance when the reserve no longer
// covers the contribution.
func (s *AllocationService) DeleteIncome(ctx context.Context, userID, incomeID int64) error {
	var reversal core.LedgerEntry
	err := s.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
		income, err := q.IncomeByID(ctx, userID, incomeID)
		if err != nil {
			return err
		}

		contribution, found, err := q.ContributionForIncome(ctx, userID, income.ID)
		if err != nil {
			return err
		}

		if err := q.DeleteIncome(ctx, userID, income.ID); err != nil {
			return err
		}
		if !found {
			return nil
		}

		reserve, err := q.ReserveFor(ctx, userID)
		if err != nil {
			return err
		}
		if reserve.Current.Cents < contribution.Amount.Cents {
			return core.ErrInsufficientBalance
		}
		if err := q.AddToReserve(ctx, userID, -contribution.Amount.Cents); err != nil {
			return err
		}

		reversal = core.LedgerEntry{
			UserID:     userID,
			Kind:       core.KindTransferOut,
			Amount:     contribution.Amount,
			OccurredAt: time.Now().UTC(),
			Note:       fmt.Sprintf("reversal of income %d", income.ID),
			IncomeRef:  &income.ID,
		}
		return q.AppendEntry(ctx, &reversal)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Income deleted",
		"user_id", userID,
		"income_id", incomeID,
		"reversed_cents", reversal.Amount.Cents)

	if reversal.ID != 0 {
		s.publish(ctx, reversal)
	}
	return nil
}

func (s *AllocationService) ListIncomes(ctx context.Context, userID int64, year, month int) ([]core.IncomeEvent, error) {
	return s.repo.Queries().ListIncomes(ctx, userID, year, month)
}

// Settings returns the user's allocation settings (default split).
func (s *AllocationService) Settings(ctx context.Context, userID int64) (core.AllocationSettings, error) {
	return s.repo.Queries().SettingsFor(ctx, userID)
}

func (s *AllocationService) UpdateSettings(ctx context.Context, settings core.AllocationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.repo.Queries().UpsertSettings(ctx, settings)
}

func (s *AllocationService) publish(ctx context.Context, entry core.LedgerEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"entry_id", entry.ID, "error", err)
	}
}
