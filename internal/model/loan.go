package model

import (
	"math"
	"time"
)

// LoanStatus tracks the lifecycle of a borrowing transaction.
// ACTIVE and RENEWED are equivalent for availability accounting:
// both mean a copy is out of the building.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
	LoanRenewed  LoanStatus = "renewed"
	LoanLost     LoanStatus = "lost"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanReturned, LoanOverdue, LoanRenewed, LoanLost:
		return true
	}
	return false
}

const (
	// DefaultMaxRenewals is applied when a loan is created without an
	// explicit renewal allowance.
	DefaultMaxRenewals = 2
	// MaxRenewalsCap bounds the per-loan allowance configurable at creation.
	MaxRenewalsCap = 5
)

// Loan mirrors the `loans` table. It references a user and a book by
// id; it is owned by neither and is never hard-deleted in normal flow.
type Loan struct {
	ID           uint64     `json:"id"`
	UserID       uint64     `json:"user_id"`
	BookID       uint64     `json:"book_id"`
	LoanDate     time.Time  `json:"loan_date"`
	DueDate      time.Time  `json:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Status       LoanStatus `json:"status"`
	RenewalCount int        `json:"renewal_count"`
	MaxRenewals  int        `json:"max_renewals"`
	FineAmount   float64    `json:"fine_amount"`
	FinePaid     bool       `json:"fine_paid"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Out reports whether the loan still holds a copy. Overdue loans are
// out of the building too; only a return or a loss releases the copy.
func (l *Loan) Out() bool {
	return l.Status == LoanActive || l.Status == LoanRenewed || l.Status == LoanOverdue
}

// IsOverdue reports whether the loan is past due at the given reference
// time while still unreturned, whether or not a sweep has persisted the
// OVERDUE status yet. Callers must pass one captured "now" through a
// whole operation so the mutating path and the display path cannot
// disagree.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Out() && (l.Status == LoanOverdue || now.After(l.DueDate))
}

// DaysOverdue returns the number of whole days past due at the
// reference time, or 0 when not overdue.
func (l *Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	d := int(now.Sub(l.DueDate).Hours() / 24)
	if d < 0 {
		// A swept loan can be evaluated at a reference time before its
		// due date, e.g. a backdated return date.
		return 0
	}
	return d
}

// CanRenew reports whether the loan is still renewable: active or
// renewed, under its renewal allowance and not past due.
func (l *Loan) CanRenew(now time.Time) bool {
	return (l.Status == LoanActive || l.Status == LoanRenewed) &&
		l.RenewalCount < l.MaxRenewals && !l.IsOverdue(now)
}

// Fine computes the overdue penalty at the given daily rate, rounded
// to cents. Returns 0 when the loan is not overdue.
func (l *Loan) Fine(now time.Time, dailyRate float64) float64 {
	if !l.IsOverdue(now) {
		return 0
	}
	return math.Round(float64(l.DaysOverdue(now))*dailyRate*100) / 100
}

// LoanStats aggregates loan counts for the stats endpoints.
type LoanStats struct {
	TotalLoans    int64 `json:"total_loans"`
	ActiveLoans   int64 `json:"active_loans"`
	OverdueLoans  int64 `json:"overdue_loans"`
	ReturnedLoans int64 `json:"returned_loans"`
}
