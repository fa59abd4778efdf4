package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event types, also used as the AMQP message type.
const (
	EventIncomeCreated  = "ledger.income.created"
	EventIncomeUpdated  = "ledger.income.updated"
	EventIncomeDeleted  = "ledger.income.deleted"
	EventExpenseCreated = "ledger.expense.created"
	EventExpenseDeleted = "ledger.expense.deleted"
)

// LedgerEvent announces a committed ledger mutation. It carries the new state
// of the affected entry so that consumers do not need to read it back.
type LedgerEvent struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	EntryID     int64     `json:"entry_id"`
	AmountCents int64     `json:"amount_cents"`
	DeltaCents  int64     `json:"delta_cents"`
	Category    string    `json:"category,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(eventType, userID string, entryID, amountCents, deltaCents int64, category string) *LedgerEvent {
	return &LedgerEvent{
		Type:        eventType,
		UserID:      userID,
		EntryID:     entryID,
		AmountCents: amountCents,
		DeltaCents:  deltaCents,
		Category:    category,
		OccurredAt:  time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event published by PublishLedgerEvent.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
