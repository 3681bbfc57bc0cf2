// Package worker mirrors committed ledger entries to an external export
// sink. Delivery is at-least-once: the exporter tolerates duplicate rows,
// never the other way around.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nestegg/internal/amqp"
	"nestegg/internal/core"
	"nestegg/internal/export"
	"nestegg/internal/storage"
)

// ExportWorker consumes ledger events and appends the corresponding entries
// to the configured sink.
type ExportWorker struct {
	storage *storage.SQLiteRepository
	sink    export.LedgerWriter
}

func NewExportWorker(storage *storage.SQLiteRepository, sink export.LedgerWriter) *ExportWorker {
	return &ExportWorker{storage: storage, sink: sink}
}

// HandleLedgerEvent processes one event. The database row, not the message
// payload, is the source of truth: the entry is re-read before export. An
// entry deleted between publish and consume is impossible (the ledger is
// append-only), so a missing row means the message is garbage and is dropped.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"event_id", msg.EventID,
		"entry_id", msg.EntryID,
		"kind", msg.Kind)

	entry, err := w.storage.Queries().EntryByID(ctx, msg.EntryID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Ledger event references unknown entry, dropping",
			"event_id", msg.EventID,
			"entry_id", msg.EntryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ledger entry: %w", err)
	}

	ref, err := w.sink.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("append to export sink: %w", err)
	}

	slog.InfoContext(ctx, "Ledger entry exported",
		"event_id", msg.EventID,
		"entry_id", entry.ID,
		"row_ref", ref,
		"amount_cents", entry.Amount.Cents)
	return nil
}
