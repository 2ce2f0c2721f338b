package utils

import (
	"errors"
	"strings"
)

// ErrInvalidISBN is returned for values that are not ISBN-10 or ISBN-13
// after separator stripping.
var ErrInvalidISBN = errors.New("invalid ISBN")

// NormalizeISBN strips hyphens and spaces, upper-cases a trailing check
// character and validates the shape: 10 characters (digits, last may be
// X) or 13 digits. The normalized form is what gets stored and used in
// unique lookups, so "978-0-13-468599-1" and "9780134685991" collide.
func NormalizeISBN(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		case r == '-' || r == ' ':
			// separator, skip
		default:
			return "", ErrInvalidISBN
		}
	}
	s := b.String()
	switch len(s) {
	case 10:
		// X is only legal as the ISBN-10 check digit.
		if strings.ContainsRune(s[:9], 'X') {
			return "", ErrInvalidISBN
		}
		return s, nil
	case 13:
		if strings.ContainsRune(s, 'X') {
			return "", ErrInvalidISBN
		}
		return s, nil
	}
	return "", ErrInvalidISBN
}
