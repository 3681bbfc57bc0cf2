package services

import (
	"context"
	"log/slog"
	"time"

	"nestegg/internal/core"
	"nestegg/internal/storage"
)

// TransferService moves value between the emergency reserve and savings
// goals. Both balances and both ledger legs change in one transaction, or
// not at all.
type TransferService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

func NewTransferService(repo *storage.SQLiteRepository, publisher EventPublisher) *TransferService {
	return &TransferService{repo: repo, publisher: publisher}
}

func (s *TransferService) Transfer(ctx context.Context, userID int64, source, dest core.TransferEndpoint, amount core.Money, occurredAt time.Time) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if err := dest.Validate(); err != nil {
		return err
	}
	if source.Equal(dest) {
		return core.ErrInvalidEndpoints
	}
	if err := amount.Validate(); err != nil {
		return err
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var legOut, legIn core.LedgerEntry
	err := s.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
		sourceBalance, err := s.balance(ctx, q, userID, source)
		if err != nil {
			return err
		}
		if sourceBalance < amount.Cents {
			return core.ErrInsufficientBalance
		}
		// destination must exist before anything moves
		if _, err := s.balance(ctx, q, userID, dest); err != nil {
			return err
		}

		if err := s.shift(ctx, q, userID, source, -amount.Cents); err != nil {
			return err
		}
		if err := s.shift(ctx, q, userID, dest, amount.Cents); err != nil {
			return err
		}

		legOut = core.LedgerEntry{
			UserID:     userID,
			Kind:       core.KindTransferOut,
			Amount:     amount,
			OccurredAt: occurredAt,
			Note:       endpointNote(source),
			GoalRef:    endpointGoalRef(source),
		}
		if err := q.AppendEntry(ctx, &legOut); err != nil {
			return err
		}

		legIn = core.LedgerEntry{
			UserID:     userID,
			Kind:       core.KindTransferIn,
			Amount:     amount,
			OccurredAt: occurredAt,
			Note:       endpointNote(dest),
			GoalRef:    endpointGoalRef(dest),
		}
		return q.AppendEntry(ctx, &legIn)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transfer committed",
		"user_id", userID,
		"amount_cents", amount.Cents,
		"source", endpointNote(source),
		"dest", endpointNote(dest))

	s.publishPair(ctx, legOut, legIn)
	return nil
}

// ArchiveGoal hides the goal from listings. A remaining balance is returned
// to the reserve first, as a regular transfer pair, so archiving never
// strands funds.
func (s *TransferService) ArchiveGoal(ctx context.Context, userID, goalID int64) error {
	var legOut, legIn core.LedgerEntry
	var returned int64
	err := s.repo.InUserTx(ctx, userID, func(q *storage.Queries) error {
		goal, err := q.GoalByID(ctx, userID, goalID)
		if err != nil {
			return err
		}
		if goal.Archived {
			return core.ErrNotFound
		}

		if goal.Current.Cents > 0 {
			returned = goal.Current.Cents
			if err := q.AddToGoal(ctx, userID, goalID, -returned); err != nil {
				return err
			}
			if err := q.AddToReserve(ctx, userID, returned); err != nil {
				return err
			}

			occurredAt := time.Now().UTC()
			legOut = core.LedgerEntry{
				UserID:     userID,
				Kind:       core.KindTransferOut,
				Amount:     core.Money{Cents: returned},
				OccurredAt: occurredAt,
				Note:       "goal",
				GoalRef:    &goalID,
			}
			if err := q.AppendEntry(ctx, &legOut); err != nil {
				return err
			}
			legIn = core.LedgerEntry{
				UserID:     userID,
				Kind:       core.KindTransferIn,
				Amount:     core.Money{Cents: returned},
				OccurredAt: occurredAt,
				Note:       "reserve",
			}
			if err := q.AppendEntry(ctx, &legIn); err != nil {
				return err
			}
		}

		return q.ArchiveGoal(ctx, userID, goalID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Goal archived",
		"user_id", userID,
		"goal_id", goalID,
		"returned_cents", returned)

	if returned > 0 {
		s.publishPair(ctx, legOut, legIn)
	}
	return nil
}

func (s *TransferService) balance(ctx context.Context, q *storage.Queries, userID int64, ep core.TransferEndpoint) (int64, error) {
	switch ep.Kind {
	case core.EndpointReserve:
		reserve, err := q.ReserveFor(ctx, userID)
		if err != nil {
			return 0, err
		}
		return reserve.Current.Cents, nil
	default:
		goal, err := q.GoalByID(ctx, userID, ep.GoalID)
		if err != nil {
			return 0, err
		}
		if goal.Archived {
			return 0, core.ErrNotFound
		}
		return goal.Current.Cents, nil
	}
}

func (s *TransferService) shift(ctx context.Context, q *storage.Queries, userID int64, ep core.TransferEndpoint, delta int64) error {
	if ep.Kind == core.EndpointReserve {
		return q.AddToReserve(ctx, userID, delta)
	}
	return q.AddToGoal(ctx, userID, ep.GoalID, delta)
}

func (s *TransferService) publishPair(ctx context.Context, out, in core.LedgerEntry) {
	if s.publisher == nil {
		return
	}
	for _, entry := range []core.LedgerEntry{out, in} {
		if err := s.publisher.PublishLedgerEvent(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ledger event",
				"entry_id", entry.ID, "error", err)
		}
	}
}

func endpointNote(ep core.TransferEndpoint) string {
	if ep.Kind == core.EndpointReserve {
		return "reserve"
	}
	return "goal"
}

func endpointGoalRef(ep core.TransferEndpoint) *int64 {
	if ep.Kind != core.EndpointGoal {
		return nil
	}
	id := ep.GoalID
	return &id
}
