package core

import "math"

// AllocationResult is the derived split of an income event. It is never
// stored; Savings + Spendable always equals the income amount exactly.
type AllocationResult struct {
	Spendable Money
	Savings   Money
}

// Allocate splits an income amount into savings and spendable parts using the
// income's override percent when present, else defaultPercent. Savings is
// rounded half-up to whole cents; spendable is the remainder, so the two
// always sum back to the original amount.
func Allocate(income IncomeEvent, defaultPercent float64) (AllocationResult, error) {
	if err := income.Amount.Validate(); err != nil {
		return AllocationResult{}, ErrInvalidAmount
	}
	pct := defaultPercent
	if income.RulePercent != nil {
		pct = *income.RulePercent
	}
	if pct < 0 || pct > 1 {
		return AllocationResult{}, ErrInvalidPercent
	}

	savings := int64(math.Round(float64(income.Amount.Cents) * pct))
	return AllocationResult{
		Savings:   Money{Cents: savings},
		Spendable: Money{Cents: income.Amount.Cents - savings},
	}, nil
}
