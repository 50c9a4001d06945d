package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/events"
)

// EventMessage is the wire envelope of a ledger event. Consumers treat it as
// a hint and re-read state rather than trusting the payload.
type EventMessage struct {
	Kind      events.Kind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEventMessage wraps e with the current time
func NewEventMessage(e events.Event) (*EventMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &EventMessage{
		Kind:      e.Kind(),
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("message has no kind")
	}
	return &msg, nil
}

// Event decodes the payload into its typed event.
func (m *EventMessage) Event() (events.Event, error) {
	switch m.Kind {
	case events.KindTransactionsChanged:
		return decode[events.TransactionsChanged](m.Payload)
	case events.KindAccountBalancesChanged:
		return decode[events.AccountBalancesChanged](m.Payload)
	case events.KindBudgetProgressInvalidated:
		return decode[events.BudgetProgressInvalidated](m.Payload)
	default:
		return nil, fmt.Errorf("unknown event kind %q", m.Kind)
	}
}

func decode[E events.Event](payload []byte) (events.Event, error) {
	var e E
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind(), err)
	}
	return e, nil
}
