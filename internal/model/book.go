package model

import "time"

// BookStatus is the administrative state of a title in the catalogue.
// AVAILABLE/LOANED follow the available-copy counter automatically;
// RESERVED, MAINTENANCE and LOST are set by staff and suppress
// loanability regardless of how many copies are on the shelf.
type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookLoaned      BookStatus = "loaned"
	BookReserved    BookStatus = "reserved"
	BookMaintenance BookStatus = "maintenance"
	BookLost        BookStatus = "lost"
)

// Valid reports whether s is a known book status.
func (s BookStatus) Valid() bool {
	switch s {
	case BookAvailable, BookLoaned, BookReserved, BookMaintenance, BookLost:
		return true
	}
	return false
}

// Book mirrors the `books` table. Quantity is the total number of
// copies owned; AvailableQuantity is how many are currently loanable.
// 0 <= AvailableQuantity <= Quantity holds at all times; the counter
// is only ever written through the availability manager.
type Book struct {
	ID                uint64     `json:"id"`
	ISBN              string     `json:"isbn"`
	Title             string     `json:"title"`
	Author            string     `json:"author"`
	Publisher         *string    `json:"publisher,omitempty"`
	PublicationYear   *int       `json:"publication_year,omitempty"`
	Edition           *string    `json:"edition,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Category          *string    `json:"category,omitempty"`
	Language          string     `json:"language"`
	Pages             *int       `json:"pages,omitempty"`
	Status            BookStatus `json:"status"`
	Location          *string    `json:"location,omitempty"`
	Quantity          int        `json:"quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	Price             *float64   `json:"price,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsAvailable reports whether a copy can be borrowed right now.
// A status override (reserved/maintenance/lost) wins over the counter.
func (b *Book) IsAvailable() bool {
	return b.Status == BookAvailable && b.AvailableQuantity > 0
}

// BookStats aggregates inventory counts for the stats endpoints.
type BookStats struct {
	TotalTitles       int64 `json:"total_titles"`
	TotalCopies       int64 `json:"total_copies"`
	AvailableCopies   int64 `json:"available_copies"`
	AvailableTitles   int64 `json:"available_titles"`
	LoanedTitles      int64 `json:"loaned_titles"`
	MaintenanceTitles int64 `json:"maintenance_titles"`
	LostTitles        int64 `json:"lost_titles"`
}
