package services

import (
	"context"
	"errors"
	"testing"

	"nestegg/internal/core"
)

func TestCommitIncomeSplitsAndFundsReserve(t *testing.T) {
	repo := newTestRepo(t)
	pub := &recordingPublisher{}
	svc := NewAllocationService(repo, pub)
	ctx := context.Background()

	// 5000.00 at the default 10% -> 500.00 savings, 4500.00 spendable
	result, income, err := svc.CommitIncome(ctx, core.IncomeEvent{
		UserID: 1,
		Amount: core.Money{Cents: 500000},
		Month:  6,
		Year:   2025,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}
	if result.Savings.Cents != 50000 || result.Spendable.Cents != 450000 {
		t.Fatalf("got savings=%d spendable=%d", result.Savings.Cents, result.Spendable.Cents)
	}
	if income.ID == 0 {
		t.Fatal("expected income to be persisted with an id")
	}

	if got := reserveBalance(t, repo, 1); got != 50000 {
		t.Fatalf("reserve balance = %d, want 50000", got)
	}

	contribution, found, err := repo.Queries().ContributionForIncome(ctx, 1, income.ID)
	if err != nil || !found {
		t.Fatalf("expected contribution entry, found=%v err=%v", found, err)
	}
	if contribution.Kind != core.KindReserveContribution || contribution.Amount.Cents != 50000 {
		t.Fatalf("unexpected contribution: %+v", contribution)
	}

	if pub.count() != 1 {
		t.Fatalf("expected one published event, got %d", pub.count())
	}
}

func TestCommitIncomeHonorsOverridePercent(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAllocationService(repo, nil)
	override := 0.25

	result, _, err := svc.CommitIncome(context.Background(), core.IncomeEvent{
		UserID:      1,
		Amount:      core.Money{Cents: 10000},
		Month:       1,
		Year:        2025,
		RulePercent: &override,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}
	if result.Savings.Cents != 2500 || result.Spendable.Cents != 7500 {
		t.Fatalf("got savings=%d spendable=%d", result.Savings.Cents, result.Spendable.Cents)
	}
}

func TestCommitIncomeZeroPercentRecordsNoContribution(t *testing.T) {
	repo := newTestRepo(t)
	pub := &recordingPublisher{}
	svc := NewAllocationService(repo, pub)
	zero := 0.0

	_, income, err := svc.CommitIncome(context.Background(), core.IncomeEvent{
		UserID:      1,
		Amount:      core.Money{Cents: 10000},
		Month:       1,
		Year:        2025,
		RulePercent: &zero,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}

	_, found, err := repo.Queries().ContributionForIncome(context.Background(), 1, income.ID)
	if err != nil {
		t.Fatalf("lookup contribution: %v", err)
	}
	if found {
		t.Fatal("zero-percent income must not record a contribution")
	}
	if pub.count() != 0 {
		t.Fatalf("expected no events, got %d", pub.count())
	}
	if got := reserveBalance(t, repo, 1); got != 0 {
		t.Fatalf("reserve should stay at 0, got %d", got)
	}
}

func TestCommitIncomeValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAllocationService(repo, nil)
	ctx := context.Background()

	_, _, err := svc.CommitIncome(ctx, core.IncomeEvent{UserID: 1, Amount: core.Money{Cents: 0}, Month: 1, Year: 2025})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	bad := 1.5
	_, _, err = svc.CommitIncome(ctx, core.IncomeEvent{UserID: 1, Amount: core.Money{Cents: 100}, Month: 1, Year: 2025, RulePercent: &bad})
	if !errors.Is(err, core.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent, got %v", err)
	}
}

func TestDeleteIncomeReversesContribution(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAllocationService(repo, nil)
	ctx := context.Background()

	_, income, err := svc.CommitIncome(ctx, core.IncomeEvent{
		UserID: 1, Amount: core.Money{Cents: 100000}, Month: 3, Year: 2025,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}
	if got := reserveBalance(t, repo, 1); got != 10000 {
		t.Fatalf("reserve = %d before delete", got)
	}

	if err := svc.DeleteIncome(ctx, 1, income.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	if got := reserveBalance(t, repo, 1); got != 0 {
		t.Fatalf("reserve = %d after delete, want 0", got)
	}

	if _, err := repo.Queries().IncomeByID(ctx, 1, income.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("income should be gone, got %v", err)
	}
}

func TestDeleteIncomeFailsWhenReserveDrained(t *testing.T) {
	repo := newTestRepo(t)
	alloc := NewAllocationService(repo, nil)
	transfers := NewTransferService(repo, nil)
	ctx := context.Background()

	_, income, err := alloc.CommitIncome(ctx, core.IncomeEvent{
		UserID: 1, Amount: core.Money{Cents: 100000}, Month: 3, Year: 2025,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}

	// drain the reserve into a goal so the reversal cannot be covered
	goal := core.Goal{UserID: 1, Name: "Trip"}
	if err := repo.Queries().CreateGoal(ctx, &goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	err = transfers.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID),
		core.Money{Cents: 10000}, timeNow())
	if err != nil {
		t.Fatalf("drain transfer: %v", err)
	}

	err = alloc.DeleteIncome(ctx, 1, income.ID)
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// nothing changed: income still present, goal untouched
	if _, err := repo.Queries().IncomeByID(ctx, 1, income.ID); err != nil {
		t.Fatalf("income should survive failed delete: %v", err)
	}
	if got := goalBalance(t, repo, 1, goal.ID); got != 10000 {
		t.Fatalf("goal = %d, want 10000", got)
	}
}

func TestUpdateSettingsChangesDefaultSplit(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAllocationService(repo, nil)
	ctx := context.Background()

	if err := svc.UpdateSettings(ctx, core.AllocationSettings{UserID: 1, DefaultPercent: 0.2}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	result, _, err := svc.CommitIncome(ctx, core.IncomeEvent{
		UserID: 1, Amount: core.Money{Cents: 10000}, Month: 1, Year: 2025,
	})
	if err != nil {
		t.Fatalf("commit income: %v", err)
	}
	if result.Savings.Cents != 2000 {
		t.Fatalf("savings = %d, want 2000", result.Savings.Cents)
	}

	if err := svc.UpdateSettings(ctx, core.AllocationSettings{UserID: 1, DefaultPercent: 1.5}); !errors.Is(err, core.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent, got %v", err)
	}
}
