package core

import (
	"strings"
	"time"
)

// LedgerKind classifies an append-only ledger entry.
type LedgerKind string

const (
	KindExpense             LedgerKind = "expense"
	KindReserveContribution LedgerKind = "reserve_contribution"
	KindTransferOut         LedgerKind = "transfer_out"
	KindTransferIn          LedgerKind = "transfer_in"
)

func (k LedgerKind) Validate() error {
	switch k {
	case KindExpense, KindReserveContribution, KindTransferOut, KindTransferIn:
		return nil
	default:
		return ErrInvalidEndpoints
	}
}

type (
	// IncomeEvent is an immutable record of money coming in. RulePercent,
	// when set, overrides the user's default allocation percent.
	IncomeEvent struct {
		ID          int64
		UserID      int64
		Amount      Money
		Month       int
		Year        int
		RulePercent *float64
	}

	// LedgerEntry is one immutable money movement. The sum of entries for a
	// user and period determines spend; corrections are new offsetting
	// entries, never updates.
	LedgerEntry struct {
		ID             int64
		UserID         int64
		Kind           LedgerKind
		Amount         Money
		OccurredAt     time.Time
		CategoryID     *int64
		Note           string
		InstallmentRef *int64
		IncomeRef      *int64
		GoalRef        *int64
	}

	// EmergencyReserve is the single protected fund per user. Its balance is
	// mutated only through income allocation and transfers.
	EmergencyReserve struct {
		UserID       int64
		Current      Money
		TargetMonths int
		Target       *Money
	}

	// Goal is a named savings target with the same mutation discipline as
	// the reserve.
	Goal struct {
		ID       int64
		UserID   int64
		Name     string
		Current  Money
		Archived bool
	}

	// AllocationSettings is the per-user default split applied to incomes
	// without an explicit override.
	AllocationSettings struct {
		UserID         int64
		DefaultPercent float64
	}

	// Budget is a per-category spending limit for one month.
	Budget struct {
		UserID     int64
		CategoryID int64
		Month      int
		Year       int
		Limit      Money
	}
)

func (e IncomeEvent) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Month < 1 || e.Month > 12 || e.Year < 1970 {
		return ErrInvalidPeriod
	}
	if e.RulePercent != nil && (*e.RulePercent < 0 || *e.RulePercent > 1) {
		return ErrInvalidPercent
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidPeriod
	}
	return nil
}

func (g Goal) Validate() error {
	if len(strings.TrimSpace(g.Name)) == 0 {
		return ErrEmptyName
	}
	if len(g.Name) > 200 {
		return ErrEmptyName
	}
	return nil
}

func (b Budget) Validate() error {
	if b.Limit.Cents < 0 {
		return ErrInvalidAmount
	}
	if b.Month < 1 || b.Month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}

func (s AllocationSettings) Validate() error {
	if s.DefaultPercent < 0 || s.DefaultPercent > 1 {
		return ErrInvalidPercent
	}
	return nil
}

// EndpointKind identifies one side of a transfer.
type EndpointKind string

const (
	EndpointReserve EndpointKind = "reserve"
	EndpointGoal    EndpointKind = "goal"
)

// TransferEndpoint names either the emergency reserve or one goal.
type TransferEndpoint struct {
	Kind   EndpointKind
	GoalID int64
}

func ReserveEndpoint() TransferEndpoint {
	return TransferEndpoint{Kind: EndpointReserve}
}

func GoalEndpoint(goalID int64) TransferEndpoint {
	return TransferEndpoint{Kind: EndpointGoal, GoalID: goalID}
}

func (e TransferEndpoint) Validate() error {
	switch e.Kind {
	case EndpointReserve:
		return nil
	case EndpointGoal:
		if e.GoalID <= 0 {
			return ErrInvalidEndpoints
		}
		return nil
	default:
		return ErrInvalidEndpoints
	}
}

func (e TransferEndpoint) Equal(o TransferEndpoint) bool {
	if e.Kind != o.Kind {
		return false
	}
	return e.Kind != EndpointGoal || e.GoalID == o.GoalID
}
