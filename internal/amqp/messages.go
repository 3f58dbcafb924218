package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger change.
type EventType string

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionUpdated  EventType = "transaction.updated"
	EventTransactionDeleted  EventType = "transaction.deleted"
	EventAllocationSet       EventType = "allocation.set"
	EventMonthAdvanced       EventType = "month.advanced"
	EventAccountReconciled   EventType = "account.reconciled"
)

// LedgerEvent is a lightweight notification that a budget month changed.
// Consumers re-read the budget instead of trusting the amounts carried here.
type LedgerEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Budget        string    `json:"budget"`
	Month         string    `json:"month"`
	AccountID     int64     `json:"account_id,omitempty"`
	CategoryID    int64     `json:"category_id,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	AmountMilli   int64     `json:"amount_milli,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh message id.
func NewLedgerEvent(typ EventType, budget, month string) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Budget:    budget,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return nil, fmt.Errorf("event id %q: %w", e.ID, err)
	}
	if e.Type == "" || e.Budget == "" {
		return nil, fmt.Errorf("event %s: missing type or budget", e.ID)
	}
	return &e, nil
}
