package service

import (
	"context"
	"time"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/utils"
)

// BookStore is the storage contract of the inventory service.
// Implemented by repository.BookRepo.
type BookStore interface {
	Create(ctx context.Context, b *model.Book) error
	GetByID(ctx context.Context, id uint64) (model.Book, error)
	GetByISBN(ctx context.Context, isbn string) (model.Book, error)
	List(ctx context.Context, f repository.BookFilter) ([]model.Book, error)
	Search(ctx context.Context, query string, limit int) ([]model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id uint64) error
	Categories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (model.BookStats, error)
}

// LoanCounter reports how many unreturned loans reference an entity.
type LoanCounter interface {
	ActiveCountByBook(ctx context.Context, bookID uint64) (int, error)
	ActiveCountByUser(ctx context.Context, userID uint64) (int, error)
}

// BookService manages the catalogue: CRUD, search and the cached read
// paths. Per-record reads are read-through against book:{id} and
// book:isbn:{isbn}; every write evicts those plus the coarse books:
// prefix so list and statistics caches never outlive a write.
type BookService struct {
	books BookStore
	loans LoanCounter
	avail *Availability
	cache cache.Store
}

func NewBookService(books BookStore, loans LoanCounter, avail *Availability, store cache.Store) *BookService {
	return &BookService{books: books, loans: loans, avail: avail, cache: store}
}

// Create adds a title to the catalogue. The ISBN is normalized before
// storage so differently punctuated forms of the same number collide
// on the unique index. A new title starts with every copy loanable.
func (s *BookService) Create(ctx context.Context, b *model.Book) error {
	isbn, err := utils.NormalizeISBN(b.ISBN)
	if err != nil {
		return Errf(CodeInvalidInput, "invalid ISBN %q", b.ISBN)
	}
	b.ISBN = isbn
	if b.Title == "" || b.Author == "" {
		return Errf(CodeInvalidInput, "title and author are required")
	}
	if b.Quantity <= 0 {
		b.Quantity = 1
	}
	b.AvailableQuantity = b.Quantity
	if b.Status == "" {
		b.Status = model.BookAvailable
	}
	if !b.Status.Valid() {
		return Errf(CodeInvalidInput, "unknown book status %q", b.Status)
	}
	if b.Language == "" {
		b.Language = "en"
	}
	if err := s.books.Create(ctx, b); err != nil {
		return mapStoreErr(err)
	}
	s.cache.DeleteByPrefix(ctx, cache.BooksPrefix)
	return nil
}

// Get fetches one book, read-through cached by id.
func (s *BookService) Get(ctx context.Context, id uint64) (model.Book, error) {
	var b model.Book
	key := cache.BookKey(id)
	if s.cache.Get(ctx, key, &b) {
		return b, nil
	}
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return model.Book{}, mapStoreErr(err)
	}
	s.cache.Set(ctx, key, b, 0)
	return b, nil
}

// GetByISBN fetches one book by normalized ISBN, read-through cached.
func (s *BookService) GetByISBN(ctx context.Context, raw string) (model.Book, error) {
	isbn, err := utils.NormalizeISBN(raw)
	if err != nil {
		return model.Book{}, Errf(CodeInvalidInput, "invalid ISBN %q", raw)
	}
	var b model.Book
	key := cache.BookISBNKey(isbn)
	if s.cache.Get(ctx, key, &b) {
		return b, nil
	}
	b, err = s.books.GetByISBN(ctx, isbn)
	if err != nil {
		return model.Book{}, mapStoreErr(err)
	}
	s.cache.Set(ctx, key, b, 0)
	return b, nil
}

// List returns catalogue pages. Pure category pages are cached under
// books:list:{category}:{skip}:{limit}; filtered views beyond that go
// straight to the database.
func (s *BookService) List(ctx context.Context, f repository.BookFilter) ([]model.Book, error) {
	cacheable := f.Author == "" && f.Status == "" && !f.AvailableOnly
	key := cache.BooksListKey(f.Category, f.Skip, f.Limit)
	if cacheable {
		var cached []model.Book
		if s.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}
	books, err := s.books.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if cacheable && len(books) > 0 {
		s.cache.Set(ctx, key, books, 0)
	}
	return books, nil
}

// Search matches the query against title, author and ISBN.
func (s *BookService) Search(ctx context.Context, query string, limit int) ([]model.Book, error) {
	if query == "" {
		return nil, Errf(CodeInvalidInput, "search query is required")
	}
	return s.books.Search(ctx, query, limit)
}

// Available lists titles with at least one loanable copy.
func (s *BookService) Available(ctx context.Context, skip, limit int) ([]model.Book, error) {
	return s.books.List(ctx, repository.BookFilter{AvailableOnly: true, Skip: skip, Limit: limit})
}

// ByAuthor lists titles whose author matches the given substring.
func (s *BookService) ByAuthor(ctx context.Context, author string, skip, limit int) ([]model.Book, error) {
	if author == "" {
		return nil, Errf(CodeInvalidInput, "author is required")
	}
	return s.books.List(ctx, repository.BookFilter{Author: author, Skip: skip, Limit: limit})
}

// Update rewrites a book's metadata, status, total quantity and price.
// The loanable counter is untouched; shrinking the total below the
// copies currently on the shelf is refused.
func (s *BookService) Update(ctx context.Context, b *model.Book) error {
	isbn, err := utils.NormalizeISBN(b.ISBN)
	if err != nil {
		return Errf(CodeInvalidInput, "invalid ISBN %q", b.ISBN)
	}
	b.ISBN = isbn
	if !b.Status.Valid() {
		return Errf(CodeInvalidInput, "unknown book status %q", b.Status)
	}
	if b.Quantity < 0 {
		return Errf(CodeInvalidInput, "quantity cannot be negative")
	}
	if err := s.books.Update(ctx, b); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, b)
	return nil
}

// AdjustStock applies an administrative correction to the loanable
// counter outside the loan flow, within the usual bounds.
func (s *BookService) AdjustStock(ctx context.Context, id uint64, delta int) (model.Book, error) {
	if delta == 0 {
		return model.Book{}, Errf(CodeInvalidInput, "delta must be non-zero")
	}
	return s.avail.Adjust(ctx, id, delta)
}

// Delete removes a title. Refused while unreturned loans still
// reference it, so loan history cannot dangle.
func (s *BookService) Delete(ctx context.Context, id uint64) error {
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	n, err := s.loans.ActiveCountByBook(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return Errf(CodeHasActiveLoans, "book has %d unreturned loan(s)", n)
	}
	if err := s.books.Delete(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.invalidate(ctx, &b)
	return nil
}

// Categories returns the distinct category list, cached for ten
// minutes because it changes rarely and is read on every browse page.
func (s *BookService) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	if s.cache.Get(ctx, cache.BookCategoriesKey, &cats) {
		return cats, nil
	}
	cats, err := s.books.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if len(cats) > 0 {
		s.cache.Set(ctx, cache.BookCategoriesKey, cats, 10*time.Minute)
	}
	return cats, nil
}

// Statistics returns aggregate inventory counters, cached briefly.
func (s *BookService) Statistics(ctx context.Context) (model.BookStats, error) {
	var stats model.BookStats
	if s.cache.Get(ctx, cache.BookStatsKey, &stats) {
		return stats, nil
	}
	stats, err := s.books.Stats(ctx)
	if err != nil {
		return model.BookStats{}, err
	}
	s.cache.Set(ctx, cache.BookStatsKey, stats, 5*time.Minute)
	return stats, nil
}

func (s *BookService) invalidate(ctx context.Context, b *model.Book) {
	s.cache.Delete(ctx, cache.BookKey(b.ID), cache.BookISBNKey(b.ISBN))
	s.cache.DeleteByPrefix(ctx, cache.BooksPrefix)
}
