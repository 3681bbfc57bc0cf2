package storage

import (
	"context"
	"database/sql"
	"errors"

	"nestegg/internal/core"
)

// ---- allocation settings ----

const defaultPayPercent = 0.10

// SettingsFor returns the user's allocation settings, falling back to the
// default split when the user never saved any.
func (q *Queries) SettingsFor(ctx context.Context, userID int64) (core.AllocationSettings, error) {
	s := core.AllocationSettings{UserID: userID, DefaultPercent: defaultPayPercent}
	err := q.db.QueryRowContext(ctx,
		`SELECT default_percent FROM allocation_settings WHERE user_id = ?`, userID).
		Scan(&s.DefaultPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, storeErr("get allocation settings", err)
	}
	return s, nil
}

func (q *Queries) UpsertSettings(ctx context.Context, s core.AllocationSettings) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO allocation_settings (user_id, default_percent)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET default_percent = excluded.default_percent`,
		s.UserID, s.DefaultPercent)
	if err != nil {
		return storeErr("upsert allocation settings", err)
	}
	return nil
}

// ---- recurring expenses ----

func (q *Queries) CreateRecurring(ctx context.Context, r *core.RecurringExpense) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_expenses
			(user_id, name, amount_cents, frequency, occurrences_per_period, category_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.UserID, r.Name, r.Amount.Cents, string(r.Frequency),
		r.OccurrencesPeriod, nullID(r.CategoryID), r.IsActive).Scan(&r.ID)
	if err != nil {
		return storeErr("create recurring expense", err)
	}
	return nil
}

func (q *Queries) RecurringByID(ctx context.Context, userID, id int64) (core.RecurringExpense, error) {
	var (
		r        core.RecurringExpense
		freq     string
		category sql.NullInt64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, amount_cents, frequency, occurrences_per_period, category_id, is_active
		FROM recurring_expenses WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&r.ID, &r.UserID, &r.Name, &r.Amount.Cents, &freq,
			&r.OccurrencesPeriod, &category, &r.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringExpense{}, notFound("recurring expense", id)
	}
	if err != nil {
		return core.RecurringExpense{}, storeErr("get recurring expense", err)
	}
	r.Frequency = core.Frequency(freq)
	r.CategoryID = fromNull(category)
	return r, nil
}

func (q *Queries) ListRecurring(ctx context.Context, userID int64) ([]core.RecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, name, amount_cents, frequency, occurrences_per_period, category_id, is_active
		FROM recurring_expenses WHERE user_id = ?
		ORDER BY id`, userID)
	if err != nil {
		return nil, storeErr("list recurring expenses", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		var (
			r        core.RecurringExpense
			freq     string
			category sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Amount.Cents, &freq,
			&r.OccurrencesPeriod, &category, &r.IsActive); err != nil {
			return nil, storeErr("scan recurring expense", err)
		}
		r.Frequency = core.Frequency(freq)
		r.CategoryID = fromNull(category)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToggleRecurringActive flips is_active and returns the new value.
func (q *Queries) ToggleRecurringActive(ctx context.Context, userID, id int64) (bool, error) {
	var active bool
	err := q.db.QueryRowContext(ctx, `
		UPDATE recurring_expenses SET is_active = NOT is_active
		WHERE id = ? AND user_id = ?
		RETURNING is_active`, id, userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("recurring expense", id)
	}
	if err != nil {
		return false, storeErr("toggle recurring expense", err)
	}
	return active, nil
}

// ---- installment plans ----

func (q *Queries) CreatePlan(ctx context.Context, p *core.InstallmentPlan) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO installment_plans
			(user_id, name, installment_cents, total_installments, start_date, category_id, paid_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.UserID, p.Name, p.InstallmentAmount.Cents, p.TotalInstallments,
		p.StartDate.UTC(), nullID(p.CategoryID), p.PaidOffset).Scan(&p.ID)
	if err != nil {
		return storeErr("create installment plan", err)
	}
	return nil
}

// PlanRow is an installment plan plus its maintained payment counter.
type PlanRow struct {
	Plan      core.InstallmentPlan
	PaidCount int
}

// Paid is the effective paid count: legacy offset plus ledger-backed payments.
func (p PlanRow) Paid() int {
	return p.Plan.PaidOffset + p.PaidCount
}

func (p PlanRow) Status() core.PlanStatus {
	return p.Plan.StatusFor(p.Paid())
}

func scanPlan(row rowScanner) (PlanRow, error) {
	var (
		p        PlanRow
		category sql.NullInt64
	)
	err := row.Scan(&p.Plan.ID, &p.Plan.UserID, &p.Plan.Name,
		&p.Plan.InstallmentAmount.Cents, &p.Plan.TotalInstallments,
		&p.Plan.StartDate, &category, &p.Plan.PaidOffset, &p.PaidCount)
	if err != nil {
		return PlanRow{}, err
	}
	p.Plan.CategoryID = fromNull(category)
	return p, nil
}

const planColumns = `id, user_id, name, installment_cents, total_installments,
		start_date, category_id, paid_offset, paid_count`

func (q *Queries) PlanByID(ctx context.Context, userID, id int64) (PlanRow, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE id = ? AND user_id = ?`,
		id, userID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRow{}, notFound("installment plan", id)
	}
	if err != nil {
		return PlanRow{}, storeErr("get installment plan", err)
	}
	return p, nil
}

func (q *Queries) ListPlans(ctx context.Context, userID int64) ([]PlanRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, storeErr("list installment plans", err)
	}
	defer rows.Close()

	var out []PlanRow
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, storeErr("scan installment plan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncrementPlanPaid bumps the maintained counter; runs in the same
// transaction as the payment's ledger append.
func (q *Queries) IncrementPlanPaid(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE installment_plans SET paid_count = paid_count + 1
		WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return storeErr("increment plan paid count", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("installment plan", id)
	}
	return nil
}

// SetPlanPaidCount overwrites the counter; only the reconciler uses this,
// after the ledger scan disagrees with the maintained value.
func (q *Queries) SetPlanPaidCount(ctx context.Context, planID int64, count int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE installment_plans SET paid_count = ? WHERE id = ?`, count, planID)
	if err != nil {
		return storeErr("set plan paid count", err)
	}
	return nil
}

// AllPlanIDs returns every plan with its owner, for reconciliation sweeps.
func (q *Queries) AllPlanIDs(ctx context.Context) (map[int64]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, user_id FROM installment_plans`)
	if err != nil {
		return nil, storeErr("list all plans", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var id, userID int64
		if err := rows.Scan(&id, &userID); err != nil {
			return nil, storeErr("scan plan id", err)
		}
		out[id] = userID
	}
	return out, rows.Err()
}

// PlanPaidCount reads the maintained counter only.
func (q *Queries) PlanPaidCount(ctx context.Context, planID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT paid_count FROM installment_plans WHERE id = ?`, planID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("installment plan", planID)
	}
	if err != nil {
		return 0, storeErr("get plan paid count", err)
	}
	return n, nil
}

// ---- categories and budgets ----

func (q *Queries) CreateCategory(ctx context.Context, userID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?) RETURNING id`,
		userID, name).Scan(&id)
	if err != nil {
		return 0, storeErr("create category", err)
	}
	return id, nil
}

// DeleteCategory removes the category only. References from ledger entries,
// budgets and plans are non-owning and stay in place.
func (q *Queries) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM categories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return storeErr("delete category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("category", id)
	}
	return nil
}

func (q *Queries) ListCategories(ctx context.Context, userID int64) (map[int64]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, storeErr("list categories", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, storeErr("scan category", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (q *Queries) UpsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, category_id, month, year, limit_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, category_id, month, year)
			DO UPDATE SET limit_cents = excluded.limit_cents`,
		b.UserID, b.CategoryID, b.Month, b.Year, b.Limit.Cents)
	if err != nil {
		return storeErr("upsert budget", err)
	}
	return nil
}

// BudgetLine pairs a budget with its category name; the name is a non-owning
// reference and may be empty when the category was removed.
type BudgetLine struct {
	CategoryID   int64
	CategoryName string
	Limit        core.Money
}

func (q *Queries) BudgetsForPeriod(ctx context.Context, userID int64, year, month int) ([]BudgetLine, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT b.category_id, COALESCE(c.name, ''), b.limit_cents
		FROM budgets b
		LEFT JOIN categories c ON c.id = b.category_id AND c.user_id = b.user_id
		WHERE b.user_id = ? AND b.year = ? AND b.month = ?
		ORDER BY b.category_id`, userID, year, month)
	if err != nil {
		return nil, storeErr("list budgets", err)
	}
	defer rows.Close()

	var out []BudgetLine
	for rows.Next() {
		var l BudgetLine
		if err := rows.Scan(&l.CategoryID, &l.CategoryName, &l.Limit.Cents); err != nil {
			return nil, storeErr("scan budget", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ExpenseTotalsByCategory sums expense-kind entries for a period, grouped by
// category. Entries without a category are excluded: they cannot count
// against any budget line.
func (q *Queries) ExpenseTotalsByCategory(ctx context.Context, userID int64, year, month int) (map[int64]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT category_id, SUM(amount_cents)
		FROM ledger_entries
		WHERE user_id = ? AND kind = ? AND year = ? AND month = ?
			AND category_id IS NOT NULL
		GROUP BY category_id`,
		userID, string(core.KindExpense), year, month)
	if err != nil {
		return nil, storeErr("sum expenses by category", err)
	}
	defer rows.Close()

	totals := make(map[int64]int64)
	for rows.Next() {
		var categoryID, cents int64
		if err := rows.Scan(&categoryID, &cents); err != nil {
			return nil, storeErr("scan expense total", err)
		}
		totals[categoryID] = cents
	}
	return totals, rows.Err()
}
