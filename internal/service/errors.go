// Package service implements the business rules of the library:
// the availability manager (the sole writer of a book's loanable-copy
// counter), the loan lifecycle (create, return, renew, overdue sweep,
// fine settlement) and the entity services with their read-through
// caching and invalidation.
package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/openlib/library-backend/internal/repository"
)

// Code identifies the specific reason an operation was refused, so
// handlers and the CLI can report it instead of a generic failure.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeBookUnavailable     Code = "BOOK_UNAVAILABLE"
	CodeNoCopies            Code = "NO_COPIES"
	CodeOverRelease         Code = "OVER_RELEASE"
	CodeLoanNotActive       Code = "LOAN_NOT_ACTIVE"
	CodeMaxRenewals         Code = "MAX_RENEWALS_REACHED"
	CodeLoanOverdue         Code = "LOAN_OVERDUE"
	CodeNoFineDue           Code = "NO_FINE_DUE"
	CodeFineAlreadyPaid     Code = "FINE_ALREADY_PAID"
	CodeInsufficientPayment Code = "INSUFFICIENT_PAYMENT"
	CodeDuplicateISBN       Code = "DUPLICATE_ISBN"
	CodeDuplicateEmail      Code = "DUPLICATE_EMAIL"
	CodeDuplicateUsername   Code = "DUPLICATE_USERNAME"
	CodeHasActiveLoans      Code = "HAS_ACTIVE_LOANS"
	CodeInvalidInput        Code = "INVALID_INPUT"
)

// Error carries a refusal code alongside a human-readable message.
type Error struct {
	code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Code() Code    { return e.code }

// Errf builds a coded error with a formatted message.
func Errf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the refusal code from err, or "" for plain
// infrastructure errors.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// mapStoreErr translates repository sentinels and sql.ErrNoRows into
// coded errors; anything else passes through as infrastructure failure.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return Errf(CodeNotFound, "not found")
	case errors.Is(err, repository.ErrNoCopies):
		return Errf(CodeNoCopies, "no copies available")
	case errors.Is(err, repository.ErrOverRelease):
		return Errf(CodeOverRelease, "all copies already on shelf")
	case errors.Is(err, repository.ErrQuantityBelowAvailable):
		return Errf(CodeInvalidInput, "quantity cannot drop below copies currently on shelf")
	case errors.Is(err, repository.ErrDuplicateISBN):
		return Errf(CodeDuplicateISBN, "a book with this ISBN already exists")
	case errors.Is(err, repository.ErrDuplicateEmail):
		return Errf(CodeDuplicateEmail, "email already in use")
	case errors.Is(err, repository.ErrDuplicateUsername):
		return Errf(CodeDuplicateUsername, "username already in use")
	}
	return err
}
