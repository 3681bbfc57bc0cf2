package core

import "errors"

// Error taxonomy for the allocation and ledger engine. Validation errors are
// terminal for the request; only ErrStoreUnavailable may be retried, and only
// by re-running the whole transactional operation.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPercent      = errors.New("invalid percent")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidEndpoints    = errors.New("invalid transfer endpoints")
	ErrNotFound            = errors.New("not found")
	ErrPlanExhausted       = errors.New("installment plan exhausted")
	ErrStoreUnavailable    = errors.New("store unavailable")

	ErrEmptyName        = errors.New("empty name")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidFrequency = errors.New("invalid frequency")
)
