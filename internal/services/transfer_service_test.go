package services

import (
	"context"
	"errors"
	"testing"

	"nestegg/internal/core"
)

func TestTransferMovesValueBetweenReserveAndGoal(t *testing.T) {
	repo := newTestRepo(t)
	pub := &recordingPublisher{}
	svc := NewTransferService(repo, pub)
	ctx := context.Background()

	seedReserve(t, repo, 1, 120000)
	goal := core.Goal{UserID: 1, Name: "Trip"}
	if err := repo.Queries().CreateGoal(ctx, &goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	// reserve 1200.00, goal 0: move 200.00 first, then a second leg
	if err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID), core.Money{Cents: 20000}, timeNow()); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	// reserve 1000.00, goal 200.00 -> transfer 300.00
	if err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID), core.Money{Cents: 30000}, timeNow()); err != nil {
		t.Fatalf("second transfer: %v", err)
	}

	if got := reserveBalance(t, repo, 1); got != 70000 {
		t.Fatalf("reserve = %d, want 70000", got)
	}
	if got := goalBalance(t, repo, 1, goal.ID); got != 50000 {
		t.Fatalf("goal = %d, want 50000", got)
	}

	// 800.00 from a 700.00 reserve must fail and change nothing
	err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID), core.Money{Cents: 80000}, timeNow())
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := reserveBalance(t, repo, 1); got != 70000 {
		t.Fatalf("reserve changed after failed transfer: %d", got)
	}
	if got := goalBalance(t, repo, 1, goal.ID); got != 50000 {
		t.Fatalf("goal changed after failed transfer: %d", got)
	}

	// two successful transfers, two legs each
	if pub.count() != 4 {
		t.Fatalf("expected 4 published legs, got %d", pub.count())
	}
}

func TestTransferConservesTotalBalance(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransferService(repo, nil)
	ctx := context.Background()

	seedReserve(t, repo, 1, 100000)
	a := core.Goal{UserID: 1, Name: "A"}
	b := core.Goal{UserID: 1, Name: "B"}
	for _, g := range []*core.Goal{&a, &b} {
		if err := repo.Queries().CreateGoal(ctx, g); err != nil {
			t.Fatalf("create goal: %v", err)
		}
	}

	total := func() int64 {
		return reserveBalance(t, repo, 1) + goalBalance(t, repo, 1, a.ID) + goalBalance(t, repo, 1, b.ID)
	}
	before := total()

	moves := []struct {
		src, dst core.TransferEndpoint
		cents    int64
	}{
		{core.ReserveEndpoint(), core.GoalEndpoint(a.ID), 40000},
		{core.GoalEndpoint(a.ID), core.GoalEndpoint(b.ID), 15000},
		{core.GoalEndpoint(b.ID), core.ReserveEndpoint(), 5000},
	}
	for i, m := range moves {
		if err := svc.Transfer(ctx, 1, m.src, m.dst, core.Money{Cents: m.cents}, timeNow()); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if got := total(); got != before {
			t.Fatalf("move %d broke conservation: %d != %d", i, got, before)
		}
	}
}

func TestTransferEndpointErrors(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransferService(repo, nil)
	ctx := context.Background()
	seedReserve(t, repo, 1, 10000)

	cases := []struct {
		name     string
		src, dst core.TransferEndpoint
		cents    int64
		want     error
	}{
		{"same endpoint", core.ReserveEndpoint(), core.ReserveEndpoint(), 100, core.ErrInvalidEndpoints},
		{"same goal", core.GoalEndpoint(1), core.GoalEndpoint(1), 100, core.ErrInvalidEndpoints},
		{"unknown kind", core.TransferEndpoint{Kind: "wallet"}, core.ReserveEndpoint(), 100, core.ErrInvalidEndpoints},
		{"zero amount", core.ReserveEndpoint(), core.GoalEndpoint(1), 0, core.ErrInvalidAmount},
		{"missing goal", core.ReserveEndpoint(), core.GoalEndpoint(999), 100, core.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Transfer(ctx, 1, tc.src, tc.dst, core.Money{Cents: tc.cents}, timeNow())
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if got := reserveBalance(t, repo, 1); got != 10000 {
		t.Fatalf("reserve changed by failed transfers: %d", got)
	}
}

func TestTransferToOtherUsersGoalFails(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransferService(repo, nil)
	ctx := context.Background()

	seedReserve(t, repo, 1, 10000)
	other := core.Goal{UserID: 2, Name: "NotYours"}
	if err := repo.Queries().CreateGoal(ctx, &other); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(other.ID), core.Money{Cents: 100}, timeNow())
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign goal, got %v", err)
	}
}

func TestTransferToArchivedGoalFails(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransferService(repo, nil)
	ctx := context.Background()

	seedReserve(t, repo, 1, 10000)
	goal := core.Goal{UserID: 1, Name: "Old"}
	if err := repo.Queries().CreateGoal(ctx, &goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := repo.Queries().ArchiveGoal(ctx, 1, goal.ID); err != nil {
		t.Fatalf("archive goal: %v", err)
	}

	err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID), core.Money{Cents: 100}, timeNow())
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for archived goal, got %v", err)
	}
}

func TestArchiveGoalReturnsBalanceToReserve(t *testing.T) {
	repo := newTestRepo(t)
	pub := &recordingPublisher{}
	svc := NewTransferService(repo, pub)
	ctx := context.Background()

	seedReserve(t, repo, 1, 100000)
	goal := core.Goal{UserID: 1, Name: "Boat"}
	if err := repo.Queries().CreateGoal(ctx, &goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := svc.Transfer(ctx, 1, core.ReserveEndpoint(), core.GoalEndpoint(goal.ID), core.Money{Cents: 30000}, timeNow()); err != nil {
		t.Fatalf("fund goal: %v", err)
	}
	published := pub.count()

	if err := svc.ArchiveGoal(ctx, 1, goal.ID); err != nil {
		t.Fatalf("archive goal: %v", err)
	}

	// nothing stranded: the goal is empty and the reserve is whole again
	if got := goalBalance(t, repo, 1, goal.ID); got != 0 {
		t.Fatalf("goal balance after archive = %d, want 0", got)
	}
	if got := reserveBalance(t, repo, 1); got != 100000 {
		t.Fatalf("reserve balance after archive = %d, want 100000", got)
	}
	if pub.count() != published+2 {
		t.Fatalf("published %d events for archive return, want 2", pub.count()-published)
	}

	goals, err := repo.Queries().ListGoals(ctx, 1)
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(goals) != 0 {
		t.Fatalf("listed %d goals after archive, want 0", len(goals))
	}

	if err := svc.ArchiveGoal(ctx, 1, goal.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second archive: got %v, want ErrNotFound", err)
	}
}

func TestArchiveEmptyGoalAppendsNoEntries(t *testing.T) {
	repo := newTestRepo(t)
	pub := &recordingPublisher{}
	svc := NewTransferService(repo, pub)
	ctx := context.Background()

	goal := core.Goal{UserID: 1, Name: "Untouched"}
	if err := repo.Queries().CreateGoal(ctx, &goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	if err := svc.ArchiveGoal(ctx, 1, goal.ID); err != nil {
		t.Fatalf("archive goal: %v", err)
	}
	if pub.count() != 0 {
		t.Fatalf("published %d events archiving an empty goal, want 0", pub.count())
	}
}
