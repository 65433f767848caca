package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"zenbudget/internal/core"
)

type EventType string

const (
	EventTransactionsAdded  EventType = "transactions.added"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventStateReset         EventType = "state.reset"
)

// StateEvent announces a committed change of the budget state.
// Revision is the state revision the change produced.
type StateEvent struct {
	Type          EventType          `json:"type"`
	Revision      uint64             `json:"revision"`
	Transactions  []core.Transaction `json:"transactions,omitempty"`
	TransactionID string             `json:"transactionId,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

func NewTransactionsAdded(revision uint64, txs []core.Transaction) *StateEvent {
	return &StateEvent{
		Type:         EventTransactionsAdded,
		Revision:     revision,
		Transactions: txs,
		Timestamp:    time.Now(),
	}
}

func NewTransactionDeleted(revision uint64, id string) *StateEvent {
	return &StateEvent{
		Type:          EventTransactionDeleted,
		Revision:      revision,
		TransactionID: id,
		Timestamp:     time.Now(),
	}
}

func NewStateReset(revision uint64) *StateEvent {
	return &StateEvent{
		Type:      EventStateReset,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *StateEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StateEventFromJSON decodes an event and rejects unknown types.
func StateEventFromJSON(data []byte) (*StateEvent, error) {
	var ev StateEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Type {
	case EventTransactionsAdded, EventTransactionDeleted, EventStateReset:
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
