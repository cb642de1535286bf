// Package events publishes ledger lifecycle events for downstream
// consumers. Publishing happens after the ledger change has committed.
package events

import (
	"context"
	"time"

	"github.com/simonvc/chainledger/internal/ledger"
)

type Type string

const (
	TransactionCreated   Type = "transaction.created"
	TransactionPosted    Type = "transaction.posted"
	TransactionReversed  Type = "transaction.reversed"
	TransactionCancelled Type = "transaction.cancelled"
	ChainVerified        Type = "chain.verified"
	IntegrityViolation   Type = "chain.integrity_violation"
)

type Event struct {
	Type          Type                 `json:"type"`
	TransactionID ledger.TransactionID `json:"transaction_id,omitempty"`
	Number        string               `json:"transaction_number,omitempty"`
	Status        ledger.Status        `json:"status,omitempty"`
	ReferenceID   ledger.TransactionID `json:"reference_id,omitempty"`
	TotalAmount   int64                `json:"total_amount,omitempty"`
	Currency      string               `json:"currency,omitempty"`
	ChainSeq      int64                `json:"chain_seq,omitempty"`
	HashValue     string               `json:"hash_value,omitempty"`
	Detail        string               `json:"detail,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// FromTransaction builds an event describing txn's current state.
func FromTransaction(typ Type, txn *ledger.Transaction, at time.Time) Event {
	return Event{
		Type:          typ,
		TransactionID: txn.ID,
		Number:        txn.Number,
		Status:        txn.Status,
		ReferenceID:   txn.ReferenceID,
		TotalAmount:   txn.TotalAmount,
		Currency:      txn.Currency,
		ChainSeq:      txn.ChainSeq,
		HashValue:     txn.HashValue,
		OccurredAt:    at.UTC(),
	}
}

// Key partitions events so all events for one transaction stay ordered.
func (e Event) Key() string {
	if e.TransactionID != "" {
		return string(e.TransactionID)
	}
	return string(e.Type)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
