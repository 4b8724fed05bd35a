package domain

import "time"

// Event types
const (
	EventTypeTransactionCompleted = "transaction.completed"
	EventTypeTransactionRejected  = "transaction.rejected"
	EventTypeSessionTransitioned  = "session.transitioned"
	EventTypeParticipantCreated   = "participant.created"
)

// Aggregate types
const (
	AggregateTypeTransaction = "transaction"
	AggregateTypeSession     = "session"
	AggregateTypeParticipant = "participant"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// TransactionStreamEvent is the record delivered to the fraud risk advisor.
type TransactionStreamEvent struct {
	TransactionID  string `json:"transaction_id"`
	AccountID      string `json:"account_id"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Amount         string `json:"amount"`
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}

// Payload converts the event to an outbox payload.
func (e TransactionStreamEvent) Payload() map[string]any {
	p := map[string]any{
		"transaction_id": e.TransactionID,
		"account_id":     e.AccountID,
		"amount":         e.Amount,
		"kind":           e.Kind,
		"status":         e.Status,
		"timestamp":      e.Timestamp,
	}
	if e.CounterpartyID != "" {
		p["counterparty_id"] = e.CounterpartyID
	}
	return p
}

// NewTransactionStreamEvent builds the stream record for a committed entry.
func NewTransactionStreamEvent(t *Transaction) TransactionStreamEvent {
	e := TransactionStreamEvent{
		TransactionID: t.ID,
		AccountID:     t.AccountID,
		Amount:        t.SignedAmount().String(),
		Kind:          string(t.Kind),
		Status:        string(t.Status),
		Timestamp:     t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.CounterpartyID != nil {
		e.CounterpartyID = *t.CounterpartyID
	}
	return e
}
