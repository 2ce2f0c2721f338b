// Package repository provides database access for users, books, loans
// and refresh tokens. Sentinel errors let the service layer map
// storage-level outcomes (duplicate key, exhausted counter) onto
// specific business-rule reasons instead of a generic failure.
package repository

import (
	"errors"
	"strings"
)

// ErrNoCopies is returned when an availability decrement finds no
// loanable copy left. The guard is evaluated inside a single
// conditional UPDATE, so two concurrent requests can never both take
// the last copy.
var ErrNoCopies = errors.New("no copies available")

// ErrOverRelease is returned when an availability increment would push
// the counter past the total quantity, e.g. a double return.
var ErrOverRelease = errors.New("all copies already on shelf")

// ErrQuantityBelowAvailable is returned when an update would set a
// book's total quantity below the number of copies on the shelf.
var ErrQuantityBelowAvailable = errors.New("quantity below available copies")

// ErrDuplicateEmail, ErrDuplicateUsername and ErrDuplicateISBN surface
// unique-key violations on the respective columns.
var (
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateISBN     = errors.New("isbn already exists")
)

// isDuplicate reports whether err is a MySQL duplicate-entry error
// (error 1062) on the named key.
func isDuplicate(err error, key string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") && strings.Contains(msg, key)
}
