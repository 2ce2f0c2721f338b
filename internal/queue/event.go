// Package queue defines message payloads exchanged over the message broker.
package queue

// EventKind discriminates loan lifecycle events on the shared queue.
type EventKind string

const (
	LoanCreated  EventKind = "loan.created"
	LoanReturned EventKind = "loan.returned"
)

// LoanEventQueue is the durable queue both the publisher and the
// consumer declare.
const LoanEventQueue = "loan.events"

// LoanEvent is published when a loan is created or returned. It carries
// enough information for downstream consumers to log or notify without
// querying the primary database.
type LoanEvent struct {
	Kind       EventKind `json:"kind"`
	LoanID     uint64    `json:"loan_id"`
	UserID     uint64    `json:"user_id"`
	BookID     uint64    `json:"book_id"`
	BookTitle  string    `json:"book_title,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	ReturnDate string    `json:"return_date,omitempty"`
	FineAmount float64   `json:"fine_amount,omitempty"`
	OccurredAt string    `json:"occurred_at"`
}
