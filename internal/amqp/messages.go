package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"nestegg/internal/core"
)

// LedgerEventMessage notifies consumers that one ledger entry was committed.
// The engine never pushes to clients directly; dashboards and exporters
// subscribe to these events instead.
type LedgerEventMessage struct {
	EventID     string    `json:"event_id"`
	UserID      int64     `json:"user_id"`
	EntryID     int64     `json:"entry_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
	Note        string    `json:"note"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(e core.LedgerEntry) *LedgerEventMessage {
	return &LedgerEventMessage{
		EventID:     uuid.NewString(),
		UserID:      e.UserID,
		EntryID:     e.ID,
		Kind:        string(e.Kind),
		AmountCents: e.Amount.Cents,
		OccurredAt:  e.OccurredAt,
		Note:        e.Note,
		Timestamp:   time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
