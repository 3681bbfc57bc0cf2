// Package storage provides the SQLite-backed persistence layer. The ledger
// table is append-only; reserve and goal balances are cached aggregates
// updated inside the same transaction as the entries that justify them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"nestegg/internal/core"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query can run
// standalone or inside a user-scoped transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles all SQL operations over a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries

	// one mutex per user: read-check-write sequences on balances and paid
	// counts must not interleave for the same user. Cross-user operations
	// never contend.
	userLocks sync.Map
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Queries returns the query set bound to the shared connection, for reads
// that need no transaction.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

func (r *SQLiteRepository) lockFor(userID int64) *sync.Mutex {
	mu, _ := r.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// InUserTx runs fn inside one transaction while holding the user's write
// lock. Either everything fn did commits, or nothing does.
func (r *SQLiteRepository) InUserTx(ctx context.Context, userID int64, fn func(q *Queries) error) error {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}

	if err := fn(New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "user_id", userID, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// storeErr tags an unexpected persistence failure as retryable.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w (%v)", op, core.ErrStoreUnavailable, err)
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
}

// ---- income events ----

func (q *Queries) CreateIncome(ctx context.Context, e *core.IncomeEvent) error {
	var rule sql.NullFloat64
	if e.RulePercent != nil {
		rule = sql.NullFloat64{Float64: *e.RulePercent, Valid: true}
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO income_events (user_id, amount_cents, month, year, rule_percent)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		e.UserID, e.Amount.Cents, e.Month, e.Year, rule).Scan(&e.ID)
	if err != nil {
		return storeErr("create income", err)
	}
	return nil
}

func (q *Queries) IncomeByID(ctx context.Context, userID, id int64) (core.IncomeEvent, error) {
	var (
		e    core.IncomeEvent
		rule sql.NullFloat64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount_cents, month, year, rule_percent
		FROM income_events
		WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Month, &e.Year, &rule)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeEvent{}, notFound("income", id)
	}
	if err != nil {
		return core.IncomeEvent{}, storeErr("get income", err)
	}
	if rule.Valid {
		e.RulePercent = &rule.Float64
	}
	return e, nil
}

func (q *Queries) DeleteIncome(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM income_events WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return storeErr("delete income", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("income", id)
	}
	return nil
}

func (q *Queries) ListIncomes(ctx context.Context, userID int64, year, month int) ([]core.IncomeEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, amount_cents, month, year, rule_percent
		FROM income_events
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY id`, userID, year, month)
	if err != nil {
		return nil, storeErr("list incomes", err)
	}
	defer rows.Close()

	var incomes []core.IncomeEvent
	for rows.Next() {
		var (
			e    core.IncomeEvent
			rule sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Month, &e.Year, &rule); err != nil {
			return nil, storeErr("scan income", err)
		}
		if rule.Valid {
			e.RulePercent = &rule.Float64
		}
		incomes = append(incomes, e)
	}
	return incomes, rows.Err()
}

// ---- ledger ----

// AppendEntry writes one immutable ledger entry. It never enforces balance
// invariants: callers do that before appending, inside the same transaction.
func (q *Queries) AppendEntry(ctx context.Context, e *core.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO ledger_entries
			(user_id, kind, amount_cents, occurred_at, month, year,
			 category_id, note, installment_ref, income_ref, goal_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		e.UserID, string(e.Kind), e.Amount.Cents, e.OccurredAt.UTC(),
		int(e.OccurredAt.Month()), e.OccurredAt.Year(),
		nullID(e.CategoryID), e.Note, nullID(e.InstallmentRef),
		nullID(e.IncomeRef), nullID(e.GoalRef)).Scan(&e.ID)
	if err != nil {
		return storeErr("append ledger entry", err)
	}
	return nil
}

func (q *Queries) EntryByID(ctx context.Context, id int64) (core.LedgerEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, amount_cents, occurred_at,
		       category_id, note, installment_ref, income_ref, goal_ref
		FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, notFound("ledger entry", id)
	}
	if err != nil {
		return core.LedgerEntry{}, storeErr("get ledger entry", err)
	}
	return e, nil
}

func (q *Queries) SumByPeriod(ctx context.Context, userID int64, kind core.LedgerKind, year, month int, categoryID *int64) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE user_id = ? AND kind = ? AND year = ? AND month = ?`
	args := []any{userID, string(kind), year, month}
	if categoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *categoryID)
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, storeErr("sum by period", err)
	}
	return total, nil
}

// CountByInstallment scans the ledger for entries referencing a plan. The
// maintained paid_count on the plan row is authoritative for payments; this
// scan exists for reconciliation.
func (q *Queries) CountByInstallment(ctx context.Context, planID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE installment_ref = ?`, planID).Scan(&n)
	if err != nil {
		return 0, storeErr("count by installment", err)
	}
	return n, nil
}

// ContributionForIncome finds the reserve contribution recorded when the
// income was committed, if any (a zero-percent split records none).
func (q *Queries) ContributionForIncome(ctx context.Context, userID, incomeID int64) (core.LedgerEntry, bool, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, amount_cents, occurred_at,
		       category_id, note, installment_ref, income_ref, goal_ref
		FROM ledger_entries
		WHERE user_id = ? AND income_ref = ? AND kind = ?
		ORDER BY id LIMIT 1`,
		userID, incomeID, string(core.KindReserveContribution))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, false, nil
	}
	if err != nil {
		return core.LedgerEntry{}, false, storeErr("get income contribution", err)
	}
	return e, true, nil
}

func (q *Queries) ListEntries(ctx context.Context, userID int64, year, month int) ([]core.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount_cents, occurred_at,
		       category_id, note, installment_ref, income_ref, goal_ref
		FROM ledger_entries
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY id`, userID, year, month)
	if err != nil {
		return nil, storeErr("list ledger entries", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr("scan ledger entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var e core.LedgerEntry
	var kind string
	var category, inst, inc, goal sql.NullInt64
	err := row.Scan(&e.ID, &e.UserID, &kind, &e.Amount.Cents, &e.OccurredAt,
		&category, &e.Note, &inst, &inc, &goal)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	e.Kind = core.LedgerKind(kind)
	e.CategoryID = fromNull(category)
	e.InstallmentRef = fromNull(inst)
	e.IncomeRef = fromNull(inc)
	e.GoalRef = fromNull(goal)
	return e, nil
}

func nullID(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// ---- emergency reserve ----

// ReserveFor returns the user's reserve, creating the zero row on first use.
func (q *Queries) ReserveFor(ctx context.Context, userID int64) (core.EmergencyReserve, error) {
	if _, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reserves (user_id) VALUES (?)`, userID); err != nil {
		return core.EmergencyReserve{}, storeErr("ensure reserve", err)
	}

	var (
		res    core.EmergencyReserve
		target sql.NullInt64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, current_cents, target_months, target_cents
		FROM reserves WHERE user_id = ?`, userID).
		Scan(&res.UserID, &res.Current.Cents, &res.TargetMonths, &target)
	if err != nil {
		return core.EmergencyReserve{}, storeErr("get reserve", err)
	}
	if target.Valid {
		res.Target = &core.Money{Cents: target.Int64}
	}
	return res, nil
}

// AddToReserve shifts the reserve balance by delta cents. The schema check
// on current_cents is the last line of defense; callers verify balances
// before calling.
func (q *Queries) AddToReserve(ctx context.Context, userID, delta int64) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reserves (user_id) VALUES (?)`, userID); err != nil {
		return storeErr("ensure reserve", err)
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE reserves SET current_cents = current_cents + ? WHERE user_id = ?`,
		delta, userID)
	if err != nil {
		return storeErr("update reserve", err)
	}
	return nil
}

func (q *Queries) SetReserveTarget(ctx context.Context, userID int64, months int, targetCents *int64) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reserves (user_id) VALUES (?)`, userID); err != nil {
		return storeErr("ensure reserve", err)
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE reserves SET target_months = ?, target_cents = ? WHERE user_id = ?`,
		months, nullID(targetCents), userID)
	if err != nil {
		return storeErr("set reserve target", err)
	}
	return nil
}

// ---- goals ----

func (q *Queries) CreateGoal(ctx context.Context, g *core.Goal) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO goals (user_id, name) VALUES (?, ?)
		RETURNING id`, g.UserID, g.Name).Scan(&g.ID)
	if err != nil {
		return storeErr("create goal", err)
	}
	return nil
}

func (q *Queries) GoalByID(ctx context.Context, userID, id int64) (core.Goal, error) {
	var g core.Goal
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, current_cents, archived
		FROM goals WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&g.ID, &g.UserID, &g.Name, &g.Current.Cents, &g.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, notFound("goal", id)
	}
	if err != nil {
		return core.Goal{}, storeErr("get goal", err)
	}
	return g, nil
}

func (q *Queries) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, name, current_cents, archived
		FROM goals WHERE user_id = ? AND archived = 0
		ORDER BY id`, userID)
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		var g core.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Current.Cents, &g.Archived); err != nil {
			return nil, storeErr("scan goal", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (q *Queries) AddToGoal(ctx context.Context, userID, goalID, delta int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE goals SET current_cents = current_cents + ?
		WHERE id = ? AND user_id = ?`, delta, goalID, userID)
	if err != nil {
		return storeErr("update goal balance", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("goal", goalID)
	}
	return nil
}

// ArchiveGoal soft-deletes: ledger entries referencing the goal keep
// resolving, the goal just disappears from listings and transfers.
func (q *Queries) ArchiveGoal(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET archived = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return storeErr("archive goal", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("goal", id)
	}
	return nil
}
