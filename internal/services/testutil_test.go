package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nestegg/internal/core"
	"nestegg/internal/storage"
)

func timeNow() time.Time { return time.Now().UTC() }

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// recordingPublisher captures published entries for assertions.
type recordingPublisher struct {
	mu      sync.Mutex
	entries []core.LedgerEntry
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, entry core.LedgerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// seedReserve routes an income entirely into the reserve so transfer tests
// start from a known balance.
func seedReserve(t *testing.T, repo *storage.SQLiteRepository, userID, cents int64) {
	t.Helper()
	alloc := NewAllocationService(repo, nil)
	full := 1.0
	_, _, err := alloc.CommitIncome(context.Background(), core.IncomeEvent{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Month:       1,
		Year:        2025,
		RulePercent: &full,
	})
	if err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
}

func reserveBalance(t *testing.T, repo *storage.SQLiteRepository, userID int64) int64 {
	t.Helper()
	reserve, err := repo.Queries().ReserveFor(context.Background(), userID)
	if err != nil {
		t.Fatalf("read reserve: %v", err)
	}
	return reserve.Current.Cents
}

func goalBalance(t *testing.T, repo *storage.SQLiteRepository, userID, goalID int64) int64 {
	t.Helper()
	goal, err := repo.Queries().GoalByID(context.Background(), userID, goalID)
	if err != nil {
		t.Fatalf("read goal: %v", err)
	}
	return goal.Current.Cents
}
