package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
)

type fakeBookStore struct {
	fakeBooks
	nextID   uint64
	getCalls int
}

func newFakeBookStore() *fakeBookStore {
	return &fakeBookStore{fakeBooks: fakeBooks{books: map[uint64]model.Book{}}, nextID: 1}
}

func (f *fakeBookStore) GetByID(ctx context.Context, id uint64) (model.Book, error) {
	f.getCalls++
	return f.fakeBooks.GetByID(ctx, id)
}

func (f *fakeBookStore) Create(_ context.Context, b *model.Book) error {
	for _, other := range f.books {
		if other.ISBN == b.ISBN {
			return repository.ErrDuplicateISBN
		}
	}
	b.ID = f.nextID
	f.nextID++
	f.books[b.ID] = *b
	return nil
}

func (f *fakeBookStore) GetByISBN(_ context.Context, isbn string) (model.Book, error) {
	for _, b := range f.books {
		if b.ISBN == isbn {
			return b, nil
		}
	}
	return model.Book{}, sql.ErrNoRows
}

func (f *fakeBookStore) List(_ context.Context, flt repository.BookFilter) ([]model.Book, error) {
	var out []model.Book
	for _, b := range f.books {
		if flt.AvailableOnly && !b.IsAvailable() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBookStore) Search(_ context.Context, _ string, _ int) ([]model.Book, error) {
	return nil, nil
}

func (f *fakeBookStore) Update(_ context.Context, b *model.Book) error {
	if _, ok := f.books[b.ID]; !ok {
		return sql.ErrNoRows
	}
	f.books[b.ID] = *b
	return nil
}

func (f *fakeBookStore) Delete(_ context.Context, id uint64) error {
	if _, ok := f.books[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.books, id)
	return nil
}

func (f *fakeBookStore) Categories(context.Context) ([]string, error) {
	return []string{"fiction", "reference"}, nil
}

func (f *fakeBookStore) Stats(context.Context) (model.BookStats, error) {
	return model.BookStats{TotalTitles: int64(len(f.books))}, nil
}

type fakeCounter struct {
	byBook map[uint64]int
	byUser map[uint64]int
}

func (f *fakeCounter) ActiveCountByBook(_ context.Context, id uint64) (int, error) {
	return f.byBook[id], nil
}

func (f *fakeCounter) ActiveCountByUser(_ context.Context, id uint64) (int, error) {
	return f.byUser[id], nil
}

type bookFixture struct {
	svc     *BookService
	books   *fakeBookStore
	counter *fakeCounter
	store   *memStore
}

func newBookFixture(t *testing.T) *bookFixture {
	t.Helper()
	f := &bookFixture{
		books:   newFakeBookStore(),
		counter: &fakeCounter{byBook: map[uint64]int{}, byUser: map[uint64]int{}},
		store:   newMemStore(),
	}
	avail := NewAvailability(fakeTx{}, f.books, f.store)
	f.svc = NewBookService(f.books, f.counter, avail, f.store)
	return f
}

func TestBookCreateDefaults(t *testing.T) {
	f := newBookFixture(t)
	b := model.Book{ISBN: "978-0-13-468599-1", Title: "The Go Programming Language", Author: "Donovan"}

	require.NoError(t, f.svc.Create(context.Background(), &b))

	assert.Equal(t, "9780134685991", b.ISBN, "stored normalized")
	assert.Equal(t, 1, b.Quantity)
	assert.Equal(t, 1, b.AvailableQuantity, "new titles start fully loanable")
	assert.Equal(t, model.BookAvailable, b.Status)
	assert.Equal(t, "en", b.Language)
	assert.NotZero(t, b.ID)
}

func TestBookCreateInvalid(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	err := f.svc.Create(ctx, &model.Book{ISBN: "not-an-isbn", Title: "T", Author: "A"})
	assert.True(t, IsCode(err, CodeInvalidInput))

	err = f.svc.Create(ctx, &model.Book{ISBN: "9780134685991", Author: "A"})
	assert.True(t, IsCode(err, CodeInvalidInput))

	err = f.svc.Create(ctx, &model.Book{ISBN: "9780134685991", Title: "T", Author: "A", Status: "shredded"})
	assert.True(t, IsCode(err, CodeInvalidInput))
}

func TestBookCreateDuplicateISBN(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Create(ctx, &model.Book{ISBN: "9780134685991", Title: "T", Author: "A"}))

	// Same number, different punctuation: must collide after normalizing.
	err := f.svc.Create(ctx, &model.Book{ISBN: "978-0-13-468599-1", Title: "T2", Author: "A2"})
	assert.True(t, IsCode(err, CodeDuplicateISBN))
}

func TestBookGetReadThrough(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()
	b := model.Book{ISBN: "9780134685991", Title: "T", Author: "A"}
	require.NoError(t, f.svc.Create(ctx, &b))

	first, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	calls := f.books.getCalls

	second, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, f.books.getCalls, "second read from cache")

	_, err = f.svc.Get(ctx, 999)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestBookUpdateEvictsCache(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()
	b := model.Book{ISBN: "9780134685991", Title: "T", Author: "A"}
	require.NoError(t, f.svc.Create(ctx, &b))

	_, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)

	b.Title = "T, 2nd ed."
	require.NoError(t, f.svc.Update(ctx, &b))

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "T, 2nd ed.", got.Title)
}

func TestBookAdjustStock(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()
	b := model.Book{ISBN: "9780134685991", Title: "T", Author: "A", Quantity: 3}
	require.NoError(t, f.svc.Create(ctx, &b))

	_, err := f.svc.AdjustStock(ctx, b.ID, 0)
	assert.True(t, IsCode(err, CodeInvalidInput))

	got, err := f.svc.AdjustStock(ctx, b.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableQuantity)

	_, err = f.svc.AdjustStock(ctx, b.ID, -2)
	assert.True(t, IsCode(err, CodeNoCopies), "counter cannot go below zero")

	_, err = f.svc.AdjustStock(ctx, b.ID, +3)
	assert.True(t, IsCode(err, CodeOverRelease), "counter cannot exceed quantity")
}

func TestBookDeleteGuard(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()
	b := model.Book{ISBN: "9780134685991", Title: "T", Author: "A"}
	require.NoError(t, f.svc.Create(ctx, &b))

	f.counter.byBook[b.ID] = 2
	err := f.svc.Delete(ctx, b.ID)
	assert.True(t, IsCode(err, CodeHasActiveLoans))

	f.counter.byBook[b.ID] = 0
	require.NoError(t, f.svc.Delete(ctx, b.ID))

	_, err = f.svc.Get(ctx, b.ID)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestBookCategoriesCached(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	cats, err := f.svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fiction", "reference"}, cats)
	assert.True(t, f.store.Exists(ctx, "books:categories"))
}
