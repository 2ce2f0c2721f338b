package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var due = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func loanWith(status LoanStatus) *Loan {
	return &Loan{
		Status:      status,
		LoanDate:    due.Add(-14 * 24 * time.Hour),
		DueDate:     due,
		MaxRenewals: DefaultMaxRenewals,
	}
}

func TestLoanOut(t *testing.T) {
	tests := []struct {
		status LoanStatus
		out    bool
	}{
		{LoanActive, true},
		{LoanRenewed, true},
		{LoanOverdue, true},
		{LoanReturned, false},
		{LoanLost, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.out, loanWith(tt.status).Out())
		})
	}
}

func TestLoanIsOverdue(t *testing.T) {
	before := due.Add(-time.Hour)
	after := due.Add(time.Hour)

	l := loanWith(LoanActive)
	assert.False(t, l.IsOverdue(before))
	assert.False(t, l.IsOverdue(due), "due date itself is not yet overdue")
	assert.True(t, l.IsOverdue(after))

	// A swept loan stays overdue regardless of the clock.
	swept := loanWith(LoanOverdue)
	assert.True(t, swept.IsOverdue(before))

	// Returned and lost loans are never overdue, even past due.
	assert.False(t, loanWith(LoanReturned).IsOverdue(after))
	assert.False(t, loanWith(LoanLost).IsOverdue(after))
}

func TestLoanDaysOverdue(t *testing.T) {
	l := loanWith(LoanActive)

	assert.Equal(t, 0, l.DaysOverdue(due.Add(-time.Hour)))
	// Whole days only: 25 hours late is one day, 47 is still one.
	assert.Equal(t, 1, l.DaysOverdue(due.Add(25*time.Hour)))
	assert.Equal(t, 1, l.DaysOverdue(due.Add(47*time.Hour)))
	assert.Equal(t, 3, l.DaysOverdue(due.Add(3*24*time.Hour)))

	// A swept loan is overdue even before its due date; the day count
	// must clamp at zero, not go negative.
	swept := loanWith(LoanOverdue)
	assert.Equal(t, 0, swept.DaysOverdue(due.Add(-48*time.Hour)))
	assert.Zero(t, swept.Fine(due.Add(-48*time.Hour), 0.50))
}

func TestLoanFine(t *testing.T) {
	l := loanWith(LoanActive)

	assert.Zero(t, l.Fine(due.Add(-time.Hour), 0.50))
	assert.Equal(t, 1.50, l.Fine(due.Add(3*24*time.Hour), 0.50))
	assert.Equal(t, 0.75, l.Fine(due.Add(3*24*time.Hour), 0.25))
	// Rounded to cents.
	assert.Equal(t, 0.33, l.Fine(due.Add(3*24*time.Hour), 0.111))
}

func TestLoanCanRenew(t *testing.T) {
	now := due.Add(-time.Hour)

	l := loanWith(LoanActive)
	assert.True(t, l.CanRenew(now))

	l.RenewalCount = l.MaxRenewals - 1
	assert.True(t, l.CanRenew(now))

	l.RenewalCount = l.MaxRenewals
	assert.False(t, l.CanRenew(now), "allowance used up")

	assert.True(t, loanWith(LoanRenewed).CanRenew(now))
	assert.False(t, loanWith(LoanActive).CanRenew(due.Add(time.Hour)), "past due")
	assert.False(t, loanWith(LoanOverdue).CanRenew(now))
	assert.False(t, loanWith(LoanReturned).CanRenew(now))
}

func TestLoanStatusValid(t *testing.T) {
	for _, s := range []LoanStatus{LoanActive, LoanReturned, LoanOverdue, LoanRenewed, LoanLost} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, LoanStatus("pending").Valid())
	assert.False(t, LoanStatus("").Valid())
}
