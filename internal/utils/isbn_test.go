package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"isbn13 plain", "9780134685991", "9780134685991"},
		{"isbn13 hyphenated", "978-0-13-468599-1", "9780134685991"},
		{"isbn13 spaced", "978 0 13 468599 1", "9780134685991"},
		{"isbn10 plain", "0306406152", "0306406152"},
		{"isbn10 check X", "0-8044-2957-X", "080442957X"},
		{"isbn10 lowercase x", "080442957x", "080442957X"},
		{"surrounding whitespace", "  9780134685991 ", "9780134685991"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeISBN(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeISBNInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too short", "12345"},
		{"eleven digits", "12345678901"},
		{"fourteen digits", "97801346859911"},
		{"letter in body", "97801346A5991"},
		{"X mid isbn10", "0X06406152"},
		{"X in isbn13", "978013468599X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeISBN(tt.in)
			assert.ErrorIs(t, err, ErrInvalidISBN)
		})
	}
}

// Differently punctuated forms of one number must normalize to the
// same stored value so the unique index catches the duplicate.
func TestNormalizeISBNCollision(t *testing.T) {
	a, err := NormalizeISBN("978-0-13-468599-1")
	assert.NoError(t, err)
	b, err := NormalizeISBN("9780134685991")
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
