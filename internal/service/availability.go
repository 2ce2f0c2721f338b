package service

import (
	"context"
	"database/sql"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/model"
)

// TxRunner runs a unit of work inside one database transaction.
// Implemented by repository.Runner; tests substitute a fake.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// AvailabilityStore is the storage contract the availability manager
// needs: a bounds-checked, atomic adjustment of available_quantity.
type AvailabilityStore interface {
	AdjustAvailabilityTx(ctx context.Context, tx *sql.Tx, bookID uint64, delta int) (model.Book, error)
}

// Availability is the single legal path for changing a book's
// available-copy count. Reserving a copy is delta -1, releasing is +1;
// administrative stock corrections may pass larger deltas. The bounds
// 0 <= available <= quantity are enforced in the storage layer's
// conditional update, so concurrent requests cannot both take the
// last copy.
type Availability struct {
	tx    TxRunner
	books AvailabilityStore
	cache cache.Store
}

func NewAvailability(tx TxRunner, books AvailabilityStore, store cache.Store) *Availability {
	return &Availability{tx: tx, books: books, cache: store}
}

// AdjustTx changes a book's available count within the caller's
// transaction. Cache eviction is the caller's job once that
// transaction commits; evicting earlier lets a concurrent reader
// repopulate the pre-commit counter.
func (a *Availability) AdjustTx(ctx context.Context, tx *sql.Tx, bookID uint64, delta int) (model.Book, error) {
	b, err := a.books.AdjustAvailabilityTx(ctx, tx, bookID, delta)
	if err != nil {
		return model.Book{}, mapStoreErr(err)
	}
	return b, nil
}

// Adjust runs AdjustTx in its own transaction and evicts the book's
// cache entries after the commit. Used for standalone stock
// corrections outside the loan flow.
func (a *Availability) Adjust(ctx context.Context, bookID uint64, delta int) (model.Book, error) {
	var b model.Book
	err := a.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		b, err = a.AdjustTx(ctx, tx, bookID, delta)
		return err
	})
	if err != nil {
		return model.Book{}, err
	}
	a.Invalidate(ctx, &b)
	return b, nil
}

// Invalidate drops the book's identity- and ISBN-keyed entries plus
// every list/search/statistics cache for books.
func (a *Availability) Invalidate(ctx context.Context, b *model.Book) {
	a.cache.Delete(ctx, cache.BookKey(b.ID), cache.BookISBNKey(b.ISBN))
	a.cache.DeleteByPrefix(ctx, cache.BooksPrefix)
}
