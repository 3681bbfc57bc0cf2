package export

import (
	"context"

	"nestegg/internal/core"
)

// Ports for outbound export adapters.
type (
	// LedgerWriter appends one ledger entry to an external sheet and returns
	// a reference to the written row.
	LedgerWriter interface {
		Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}
)
