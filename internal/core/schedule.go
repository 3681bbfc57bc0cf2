package core

import (
	"math"
	"strings"
	"time"
)

// Frequency of a recurring obligation.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly, Yearly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

// PeriodFactor maps a frequency to its monthly multiplier: a weekly
// obligation costs four times per month, a yearly one a twelfth.
func (f Frequency) PeriodFactor() float64 {
	switch f {
	case Weekly:
		return 4
	case Yearly:
		return 1.0 / 12.0
	default:
		return 1
	}
}

// RecurringExpense is an open-ended repeating obligation. Inactive expenses
// keep their payment history but drop out of commitment totals.
type RecurringExpense struct {
	ID                int64
	UserID            int64
	Name              string
	Amount            Money
	Frequency         Frequency
	OccurrencesPeriod int
	CategoryID        *int64
	IsActive          bool
}

func (r RecurringExpense) Validate() error {
	if len(strings.TrimSpace(r.Name)) == 0 {
		return ErrEmptyName
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if err := r.Frequency.Validate(); err != nil {
		return err
	}
	if r.OccurrencesPeriod < 1 {
		return ErrInvalidAmount
	}
	return nil
}

// MonthlyEquivalent is the per-month cost of this obligation, half-up rounded
// for yearly frequencies.
func (r RecurringExpense) MonthlyEquivalent() Money {
	raw := float64(r.Amount.Cents) * float64(r.OccurrencesPeriod) * r.Frequency.PeriodFactor()
	return Money{Cents: int64(math.Round(raw))}
}

// PlanStatus of an installment plan, derived solely from paid count vs total.
// Transitions are monotonic: future -> active -> completed.
type PlanStatus string

const (
	PlanFuture    PlanStatus = "future"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
)

// InstallmentPlan is a fixed-count series of equal payments. PaidOffset
// carries payments imported from legacy data; the effective paid count is
// PaidOffset plus the ledger entries referencing the plan.
type InstallmentPlan struct {
	ID                int64
	UserID            int64
	Name              string
	InstallmentAmount Money
	TotalInstallments int
	StartDate         time.Time
	CategoryID        *int64
	PaidOffset        int
}

func (p InstallmentPlan) Validate() error {
	if len(strings.TrimSpace(p.Name)) == 0 {
		return ErrEmptyName
	}
	if err := p.InstallmentAmount.Validate(); err != nil {
		return err
	}
	if p.TotalInstallments < 1 {
		return ErrInvalidAmount
	}
	if p.StartDate.IsZero() {
		return ErrInvalidAmount
	}
	if p.PaidOffset < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// StatusFor returns the plan status for a given effective paid count.
func (p InstallmentPlan) StatusFor(paid int) PlanStatus {
	switch {
	case paid <= 0:
		return PlanFuture
	case paid >= p.TotalInstallments:
		return PlanCompleted
	default:
		return PlanActive
	}
}
