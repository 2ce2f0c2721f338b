package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/queue"
	"github.com/openlib/library-backend/internal/repository"
)

// fakeTx runs the unit of work without a real transaction. The repos
// under test are in-memory, so there is nothing to roll back; failure
// propagation is what the service tests care about.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error { return fn(nil) }

// watchingTx records whether a cache key was still present at the
// moment the unit of work finished, i.e. just before the commit would
// happen against a real database.
type watchingTx struct {
	store      *memStore
	key        string
	cachedInTx bool
}

func (w *watchingTx) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	err := fn(nil)
	w.cachedInTx = w.store.Exists(ctx, w.key)
	return err
}

// memStore is an in-memory cache.Store with the same hit semantics as
// the Redis one.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string, dest any) bool {
	raw, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.data[key] = raw
}

func (m *memStore) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		delete(m.data, k)
	}
}

func (m *memStore) DeleteByPrefix(_ context.Context, prefix string) {
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.data, k)
		}
	}
}

func (m *memStore) Exists(_ context.Context, key string) bool { _, ok := m.data[key]; return ok }
func (m *memStore) Ping(context.Context) error                { return nil }
func (m *memStore) Flush(context.Context)                     { m.data = map[string][]byte{} }

// fakeBooks backs both BookReader and AvailabilityStore.
type fakeBooks struct {
	books     map[uint64]model.Book
	adjustErr error // forced failure for race simulation
}

func (f *fakeBooks) GetByID(_ context.Context, id uint64) (model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return model.Book{}, sql.ErrNoRows
	}
	return b, nil
}

func (f *fakeBooks) AdjustAvailabilityTx(_ context.Context, _ *sql.Tx, id uint64, delta int) (model.Book, error) {
	if f.adjustErr != nil {
		return model.Book{}, f.adjustErr
	}
	b, ok := f.books[id]
	if !ok {
		return model.Book{}, sql.ErrNoRows
	}
	next := b.AvailableQuantity + delta
	if next < 0 {
		return model.Book{}, repository.ErrNoCopies
	}
	if next > b.Quantity {
		return model.Book{}, repository.ErrOverRelease
	}
	b.AvailableQuantity = next
	f.books[id] = b
	return b, nil
}

// fakeLoans mirrors the repository guards the service relies on.
type fakeLoans struct {
	loans     map[uint64]model.Loan
	nextID    uint64
	listCalls int
}

func newFakeLoans() *fakeLoans { return &fakeLoans{loans: map[uint64]model.Loan{}, nextID: 1} }

func (f *fakeLoans) put(l model.Loan) uint64 {
	if l.ID == 0 {
		l.ID = f.nextID
		f.nextID++
	}
	f.loans[l.ID] = l
	return l.ID
}

func (f *fakeLoans) CreateTx(_ context.Context, _ *sql.Tx, l *model.Loan) error {
	l.ID = f.put(*l)
	return nil
}

func (f *fakeLoans) GetByID(_ context.Context, id uint64) (model.Loan, error) {
	l, ok := f.loans[id]
	if !ok {
		return model.Loan{}, sql.ErrNoRows
	}
	return l, nil
}

func (f *fakeLoans) GetForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (model.Loan, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeLoans) FinishTx(_ context.Context, _ *sql.Tx, id uint64, returnDate time.Time, fine float64, finePaid bool, notes *string) error {
	l, ok := f.loans[id]
	if !ok || !l.Out() {
		return sql.ErrNoRows
	}
	l.Status = model.LoanReturned
	l.ReturnDate = &returnDate
	l.FineAmount = fine
	l.FinePaid = finePaid
	if notes != nil {
		l.Notes = notes
	}
	f.loans[id] = l
	return nil
}

func (f *fakeLoans) Renew(_ context.Context, id uint64, newDue time.Time) (bool, error) {
	l, ok := f.loans[id]
	if !ok {
		return false, nil
	}
	if l.Status != model.LoanActive && l.Status != model.LoanRenewed {
		return false, nil
	}
	if l.RenewalCount >= l.MaxRenewals {
		return false, nil
	}
	l.DueDate = newDue
	l.RenewalCount++
	l.Status = model.LoanRenewed
	f.loans[id] = l
	return true, nil
}

func (f *fakeLoans) MarkFinePaid(_ context.Context, id uint64) (bool, error) {
	l, ok := f.loans[id]
	if !ok || l.FineAmount == 0 || l.FinePaid {
		return false, nil
	}
	l.FinePaid = true
	f.loans[id] = l
	return true, nil
}

func (f *fakeLoans) List(_ context.Context, flt repository.LoanFilter) ([]model.Loan, error) {
	f.listCalls++
	var out []model.Loan
	for _, l := range f.loans {
		if flt.OverdueOnly && !l.IsOverdue(flt.Now) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLoans) ListByUser(_ context.Context, userID uint64, activeOnly bool, _, _ int) ([]model.Loan, error) {
	f.listCalls++
	var out []model.Loan
	for _, l := range f.loans {
		if l.UserID != userID {
			continue
		}
		if activeOnly && !l.Out() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLoans) ListByBook(_ context.Context, bookID uint64, activeOnly bool, _, _ int) ([]model.Loan, error) {
	var out []model.Loan
	for _, l := range f.loans {
		if l.BookID != bookID {
			continue
		}
		if activeOnly && !l.Out() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLoans) OverdueTx(_ context.Context, _ *sql.Tx, now time.Time) ([]model.Loan, error) {
	var out []model.Loan
	for _, l := range f.loans {
		if (l.Status == model.LoanActive || l.Status == model.LoanRenewed) && now.After(l.DueDate) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLoans) MarkOverdueTx(_ context.Context, _ *sql.Tx, id uint64, fine float64) error {
	l, ok := f.loans[id]
	if !ok {
		return sql.ErrNoRows
	}
	l.Status = model.LoanOverdue
	l.FineAmount = fine
	f.loans[id] = l
	return nil
}

func (f *fakeLoans) Stats(_ context.Context, now time.Time) (model.LoanStats, error) {
	var s model.LoanStats
	for _, l := range f.loans {
		s.TotalLoans++
		switch {
		case l.Status == model.LoanReturned:
			s.ReturnedLoans++
		case l.IsOverdue(now):
			s.OverdueLoans++
		case l.Out():
			s.ActiveLoans++
		}
	}
	return s, nil
}

type fakeEvents struct {
	published []queue.LoanEvent
}

func (f *fakeEvents) Publish(_ context.Context, ev queue.LoanEvent) error {
	f.published = append(f.published, ev)
	return nil
}

type loanFixture struct {
	svc    *LoanService
	loans  *fakeLoans
	books  *fakeBooks
	store  *memStore
	events *fakeEvents
	now    time.Time
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	f := &loanFixture{
		loans:  newFakeLoans(),
		books:  &fakeBooks{books: map[uint64]model.Book{}},
		store:  newMemStore(),
		events: &fakeEvents{},
		now:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	avail := NewAvailability(fakeTx{}, f.books, f.store)
	f.svc = NewLoanService(fakeTx{}, f.loans, f.books, avail, f.store, f.events, LoanConfig{
		DailyFineRate: 0.50,
		LoanPeriod:    14 * 24 * time.Hour,
		PageSize:      100,
	})
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *loanFixture) addBook(id uint64, available, quantity int) {
	f.books.books[id] = model.Book{
		ID: id, ISBN: "9780134685991", Title: "The Go Programming Language",
		Author: "Donovan", Status: model.BookAvailable,
		Quantity: quantity, AvailableQuantity: available,
	}
}

func (f *loanFixture) addLoan(l model.Loan) uint64 {
	if l.Status == "" {
		l.Status = model.LoanActive
	}
	if l.MaxRenewals == 0 {
		l.MaxRenewals = model.DefaultMaxRenewals
	}
	return f.loans.put(l)
}

func TestLoanWritesEvictBookCacheAfterCommit(t *testing.T) {
	ctx := context.Background()
	books := &fakeBooks{books: map[uint64]model.Book{}}
	loans := newFakeLoans()
	store := newMemStore()
	books.books[1] = model.Book{
		ID: 1, ISBN: "9780134685991", Title: "The Go Programming Language",
		Author: "Donovan", Status: model.BookAvailable, Quantity: 3, AvailableQuantity: 2,
	}

	tx := &watchingTx{store: store, key: cache.BookKey(1)}
	avail := NewAvailability(tx, books, store)
	svc := NewLoanService(tx, loans, books, avail, store, nil, LoanConfig{
		DailyFineRate: 0.50,
		LoanPeriod:    14 * 24 * time.Hour,
	})
	svc.SetClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) })

	// A reader inside the transaction window must still see the cached
	// entry; evicting before the commit would let it repopulate the
	// stale counter.
	store.Set(ctx, cache.BookKey(1), books.books[1], 0)
	created, err := svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 1})
	require.NoError(t, err)
	assert.True(t, tx.cachedInTx, "entry survives until the borrow commits")
	assert.False(t, store.Exists(ctx, cache.BookKey(1)), "entry evicted after the borrow commits")

	store.Set(ctx, cache.BookKey(1), books.books[1], 0)
	_, err = svc.Return(ctx, created.ID, ReturnInput{})
	require.NoError(t, err)
	assert.True(t, tx.cachedInTx, "entry survives until the return commits")
	assert.False(t, store.Exists(ctx, cache.BookKey(1)), "entry evicted after the return commits")
}

func TestLoanCreate(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 2, 3)

	d, err := f.svc.Create(context.Background(), CreateLoanInput{UserID: 7, BookID: 1})
	require.NoError(t, err)

	assert.Equal(t, model.LoanActive, d.Status)
	assert.Equal(t, f.now, d.LoanDate)
	assert.Equal(t, f.now.Add(14*24*time.Hour), d.DueDate)
	assert.Equal(t, model.DefaultMaxRenewals, d.MaxRenewals)
	assert.False(t, d.IsOverdue)
	assert.True(t, d.CanRenew)

	assert.Equal(t, 1, f.books.books[1].AvailableQuantity, "one copy consumed")
	require.Len(t, f.events.published, 1)
	assert.Equal(t, queue.LoanCreated, f.events.published[0].Kind)
	assert.Equal(t, d.ID, f.events.published[0].LoanID)
}

func TestLoanCreateValidation(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 1, 1)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 1, DueDate: f.now.Add(-time.Hour)})
	assert.True(t, IsCode(err, CodeInvalidInput))

	bad := model.MaxRenewalsCap + 1
	_, err = f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 1, MaxRenewals: &bad})
	assert.True(t, IsCode(err, CodeInvalidInput))

	assert.Equal(t, 1, f.books.books[1].AvailableQuantity, "no copy consumed on refusal")
	assert.Empty(t, f.loans.loans)
}

func TestLoanCreateUnavailable(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()

	// Unknown book.
	_, err := f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 99})
	assert.True(t, IsCode(err, CodeBookUnavailable))

	// No copies on the shelf.
	f.addBook(1, 0, 2)
	_, err = f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 1})
	assert.True(t, IsCode(err, CodeBookUnavailable))

	// Status override wins even with copies on the shelf.
	f.addBook(2, 2, 2)
	b := f.books.books[2]
	b.Status = model.BookMaintenance
	f.books.books[2] = b
	_, err = f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 2})
	assert.True(t, IsCode(err, CodeBookUnavailable))

	assert.Empty(t, f.loans.loans)
}

func TestLoanCreateRace(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 1, 1)
	// The pre-check passes but the conditional decrement loses the race.
	f.books.adjustErr = repository.ErrNoCopies

	_, err := f.svc.Create(context.Background(), CreateLoanInput{UserID: 7, BookID: 1})
	assert.True(t, IsCode(err, CodeNoCopies))
	assert.Empty(t, f.loans.loans, "no loan row without a copy")
}

func TestLoanReturn(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 0, 1)
	id := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})

	d, err := f.svc.Return(context.Background(), id, ReturnInput{})
	require.NoError(t, err)

	assert.Equal(t, model.LoanReturned, d.Status)
	require.NotNil(t, d.ReturnDate)
	assert.Equal(t, f.now, *d.ReturnDate)
	assert.Zero(t, d.FineAmount, "returned before due")
	assert.Equal(t, 1, f.books.books[1].AvailableQuantity, "copy back on shelf")

	require.Len(t, f.events.published, 1)
	assert.Equal(t, queue.LoanReturned, f.events.published[0].Kind)
}

func TestLoanReturnFine(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 0, 1)
	// Due three days ago at 0.50/day: computed fine 1.50.
	id := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(-3 * 24 * time.Hour)})

	d, err := f.svc.Return(context.Background(), id, ReturnInput{FineAmount: 1.00})
	require.NoError(t, err)
	assert.Equal(t, 1.50, d.FineAmount, "computed fine wins over a lower supplied one")

	f.addBook(2, 0, 1)
	id2 := f.addLoan(model.Loan{UserID: 7, BookID: 2, DueDate: f.now.Add(-3 * 24 * time.Hour)})
	d2, err := f.svc.Return(context.Background(), id2, ReturnInput{FineAmount: 5.00})
	require.NoError(t, err)
	assert.Equal(t, 5.00, d2.FineAmount, "supplied fine wins when higher")
}

func TestLoanReturnNotActive(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 0, 1)
	id := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})

	_, err := f.svc.Return(context.Background(), id, ReturnInput{})
	require.NoError(t, err)

	// Second return must not release a second copy.
	_, err = f.svc.Return(context.Background(), id, ReturnInput{})
	assert.True(t, IsCode(err, CodeLoanNotActive))
	assert.Equal(t, 1, f.books.books[1].AvailableQuantity)
}

func TestLoanReturnSwept(t *testing.T) {
	f := newLoanFixture(t)
	f.addBook(1, 0, 1)
	id := f.addLoan(model.Loan{
		UserID: 7, BookID: 1,
		DueDate: f.now.Add(-2 * 24 * time.Hour),
		Status:  model.LoanOverdue,
	})

	// A loan the sweep already marked OVERDUE is still returnable.
	d, err := f.svc.Return(context.Background(), id, ReturnInput{})
	require.NoError(t, err)
	assert.Equal(t, model.LoanReturned, d.Status)
	assert.Equal(t, 1.00, d.FineAmount)
	assert.Equal(t, 1, f.books.books[1].AvailableQuantity)
}

func TestLoanRenew(t *testing.T) {
	f := newLoanFixture(t)
	id := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})

	d, err := f.svc.Renew(context.Background(), id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, model.LoanRenewed, d.Status)
	assert.Equal(t, 1, d.RenewalCount)
	assert.Equal(t, f.now.Add(14*24*time.Hour), d.DueDate, "default period from now")

	explicit := f.now.Add(7 * 24 * time.Hour)
	d, err = f.svc.Renew(context.Background(), id, explicit)
	require.NoError(t, err)
	assert.Equal(t, 2, d.RenewalCount)
	assert.Equal(t, explicit, d.DueDate)
}

func TestLoanRenewRefusals(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()
	future := f.now.Add(24 * time.Hour)

	returned := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: future, Status: model.LoanReturned})
	_, err := f.svc.Renew(ctx, returned, time.Time{})
	assert.True(t, IsCode(err, CodeLoanNotActive))

	overdue := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(-24 * time.Hour)})
	_, err = f.svc.Renew(ctx, overdue, time.Time{})
	assert.True(t, IsCode(err, CodeLoanOverdue))

	spent := f.addLoan(model.Loan{
		UserID: 7, BookID: 1, DueDate: future,
		RenewalCount: model.DefaultMaxRenewals,
	})
	_, err = f.svc.Renew(ctx, spent, time.Time{})
	assert.True(t, IsCode(err, CodeMaxRenewals))

	past := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: future})
	_, err = f.svc.Renew(ctx, past, f.now.Add(-time.Hour))
	assert.True(t, IsCode(err, CodeInvalidInput))

	_, err = f.svc.Renew(ctx, 999, time.Time{})
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestSweepOverdue(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()

	late1 := f.addLoan(model.Loan{UserID: 1, BookID: 1, DueDate: f.now.Add(-3 * 24 * time.Hour)})
	late2 := f.addLoan(model.Loan{UserID: 2, BookID: 2, DueDate: f.now.Add(-24 * time.Hour), Status: model.LoanRenewed})
	onTime := f.addLoan(model.Loan{UserID: 3, BookID: 3, DueDate: f.now.Add(24 * time.Hour)})

	n, err := f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, model.LoanOverdue, f.loans.loans[late1].Status)
	assert.Equal(t, 1.50, f.loans.loans[late1].FineAmount)
	assert.Equal(t, model.LoanOverdue, f.loans.loans[late2].Status)
	assert.Equal(t, 0.50, f.loans.loans[late2].FineAmount)
	assert.Equal(t, model.LoanActive, f.loans.loans[onTime].Status)

	// Swept loans leave the selection set.
	n, err = f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPayFine(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()

	clean := f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})
	_, err := f.svc.PayFine(ctx, clean, 1.00)
	assert.True(t, IsCode(err, CodeNoFineDue))

	fined := f.addLoan(model.Loan{
		UserID: 7, BookID: 1, DueDate: f.now.Add(-24 * time.Hour),
		Status: model.LoanOverdue, FineAmount: 1.50,
	})
	_, err = f.svc.PayFine(ctx, fined, 1.00)
	assert.True(t, IsCode(err, CodeInsufficientPayment))

	d, err := f.svc.PayFine(ctx, fined, 1.50)
	require.NoError(t, err)
	assert.True(t, d.FinePaid)

	_, err = f.svc.PayFine(ctx, fined, 1.50)
	assert.True(t, IsCode(err, CodeFineAlreadyPaid))
}

func TestListByUserCaching(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()
	f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})

	first, err := f.svc.ListByUser(ctx, 7, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	calls := f.loans.listCalls

	second, err := f.svc.ListByUser(ctx, 7, true, 0, 0)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, calls, f.loans.listCalls, "second page served from cache")

	// A write evicts the cached page.
	f.addBook(2, 1, 1)
	_, err = f.svc.Create(ctx, CreateLoanInput{UserID: 7, BookID: 2})
	require.NoError(t, err)

	third, err := f.svc.ListByUser(ctx, 7, true, 0, 0)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestCachedOverdueRecomputesFlags(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()
	f.addLoan(model.Loan{UserID: 7, BookID: 1, DueDate: f.now.Add(-2 * 24 * time.Hour)})

	first, err := f.svc.Overdue(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 2, first[0].DaysOverdue)

	// Later read off the cache still derives from the current clock.
	f.now = f.now.Add(24 * time.Hour)
	second, err := f.svc.Overdue(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].IsOverdue)
	assert.Equal(t, 3, second[0].DaysOverdue)
}

func TestLoanStatistics(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()
	f.addLoan(model.Loan{UserID: 1, BookID: 1, DueDate: f.now.Add(24 * time.Hour)})
	f.addLoan(model.Loan{UserID: 2, BookID: 2, DueDate: f.now.Add(-24 * time.Hour)})
	f.addLoan(model.Loan{UserID: 3, BookID: 3, DueDate: f.now, Status: model.LoanReturned})

	s, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalLoans)
	assert.Equal(t, int64(1), s.ActiveLoans)
	assert.Equal(t, int64(1), s.OverdueLoans)
	assert.Equal(t, int64(1), s.ReturnedLoans)

	// Served from cache on the second read.
	f.addLoan(model.Loan{UserID: 4, BookID: 4, DueDate: f.now.Add(24 * time.Hour)})
	s, err = f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalLoans)
}
