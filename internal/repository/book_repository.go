package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/openlib/library-backend/internal/model"
)

// BookRepo provides data access to the books table. All timestamps are
// stored in UTC. The available_quantity column is only ever written by
// AdjustAvailabilityTx; every other method leaves it untouched.
type BookRepo struct{ DB *sql.DB }

func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{DB: db} }

const bookColumns = `id, isbn, title, author, publisher, publication_year, edition,
	description, category, language, pages, status, location,
	quantity, available_quantity, price, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx so single-row reads
// can run inside or outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanBook(row *sql.Row) (model.Book, error) {
	var b model.Book
	var publisher, edition, description, category, location sql.NullString
	var pubYear, pages sql.NullInt64
	var price sql.NullFloat64
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &publisher, &pubYear, &edition,
		&description, &category, &b.Language, &pages, &b.Status, &location,
		&b.Quantity, &b.AvailableQuantity, &price, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Book{}, err
	}
	b.Publisher = strPtr(publisher)
	b.Edition = strPtr(edition)
	b.Description = strPtr(description)
	b.Category = strPtr(category)
	b.Location = strPtr(location)
	b.PublicationYear = intPtr(pubYear)
	b.Pages = intPtr(pages)
	if price.Valid {
		p := price.Float64
		b.Price = &p
	}
	return b, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

// Create inserts a book and populates its ID and timestamps. A new
// title starts with every copy on the shelf.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO books (isbn, title, author, publisher, publication_year, edition,
			description, category, language, pages, status, location, quantity,
			available_quantity, price)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ISBN, b.Title, b.Author, b.Publisher, b.PublicationYear, b.Edition,
		b.Description, b.Category, b.Language, b.Pages, b.Status, b.Location,
		b.Quantity, b.AvailableQuantity, b.Price)
	if err != nil {
		if isDuplicate(err, "isbn") {
			return ErrDuplicateISBN
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	created, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = created
	return nil
}

// GetByID fetches a book by primary key. Returns sql.ErrNoRows when
// the book does not exist.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (model.Book, error) {
	return scanBook(r.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id=? LIMIT 1`, id))
}

// GetByISBN fetches a book by its normalized ISBN.
func (r *BookRepo) GetByISBN(ctx context.Context, isbn string) (model.Book, error) {
	return scanBook(r.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn=? LIMIT 1`, isbn))
}

// BookFilter narrows List results. Zero values mean "no filter".
type BookFilter struct {
	Category      string
	Author        string
	Status        model.BookStatus
	AvailableOnly bool
	Skip          int
	Limit         int
}

// List returns books matching the filter ordered by title.
func (r *BookRepo) List(ctx context.Context, f BookFilter) ([]model.Book, error) {
	var conds []string
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Author != "" {
		conds = append(conds, "author LIKE ?")
		args = append(args, "%"+f.Author+"%")
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.AvailableOnly {
		conds = append(conds, "status = 'available' AND available_quantity > 0")
	}
	q := `SELECT ` + bookColumns + ` FROM books`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY title LIMIT ? OFFSET ?"
	args = append(args, pageLimit(f.Limit), f.Skip)
	return r.queryBooks(ctx, q, args...)
}

// Search matches the query as a substring of title, author or ISBN.
func (r *BookRepo) Search(ctx context.Context, query string, limit int) ([]model.Book, error) {
	like := "%" + query + "%"
	return r.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE title LIKE ? OR author LIKE ? OR isbn LIKE ?
		 ORDER BY title LIMIT ?`,
		like, like, like, pageLimit(limit))
}

func (r *BookRepo) queryBooks(ctx context.Context, q string, args ...any) ([]model.Book, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	books := make([]model.Book, 0)
	for rows.Next() {
		var b model.Book
		var publisher, edition, description, category, location sql.NullString
		var pubYear, pages sql.NullInt64
		var price sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &publisher, &pubYear, &edition,
			&description, &category, &b.Language, &pages, &b.Status, &location,
			&b.Quantity, &b.AvailableQuantity, &price, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Publisher = strPtr(publisher)
		b.Edition = strPtr(edition)
		b.Description = strPtr(description)
		b.Category = strPtr(category)
		b.Location = strPtr(location)
		b.PublicationYear = intPtr(pubYear)
		b.Pages = intPtr(pages)
		if price.Valid {
			p := price.Float64
			b.Price = &p
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Update rewrites a book's metadata, status, total quantity and price.
// The guard on available_quantity keeps the total from dropping below
// the copies currently on the shelf; available_quantity itself is not
// written here.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE books SET isbn=?, title=?, author=?, publisher=?, publication_year=?,
			edition=?, description=?, category=?, language=?, pages=?, status=?,
			location=?, quantity=?, price=?
		 WHERE id=? AND available_quantity <= ?`,
		b.ISBN, b.Title, b.Author, b.Publisher, b.PublicationYear, b.Edition,
		b.Description, b.Category, b.Language, b.Pages, b.Status, b.Location,
		b.Quantity, b.Price, b.ID, b.Quantity)
	if err != nil {
		if isDuplicate(err, "isbn") {
			return ErrDuplicateISBN
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or quantity below the loanable count.
		if _, err := r.GetByID(ctx, b.ID); err != nil {
			return err
		}
		return ErrQuantityBelowAvailable
	}
	updated, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = updated
	return nil
}

// Delete removes a book row. The caller is responsible for refusing
// deletion while active loans reference the book.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdjustAvailabilityTx changes available_quantity by delta inside the
// given transaction. The bounds check lives in the UPDATE itself, so a
// decrement of the last copy can only succeed once across concurrent
// requests. Status flips LOANED when the last copy goes out and back
// to AVAILABLE when a copy returns; administrative statuses
// (reserved/maintenance/lost) are never overwritten.
func (r *BookRepo) AdjustAvailabilityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) (model.Book, error) {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	res, err := q.ExecContext(ctx,
		`UPDATE books
		 SET available_quantity = available_quantity + ?
		 WHERE id = ?
		   AND available_quantity + ? >= 0
		   AND available_quantity + ? <= quantity`,
		delta, id, delta, delta)
	if err != nil {
		return model.Book{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Book{}, err
	}
	if n == 0 {
		// Distinguish missing book from an out-of-bounds adjustment.
		var total, avail int
		err := q.QueryRowContext(ctx,
			`SELECT quantity, available_quantity FROM books WHERE id=? LIMIT 1`, id).
			Scan(&total, &avail)
		if err != nil {
			return model.Book{}, err
		}
		if avail+delta < 0 {
			return model.Book{}, ErrNoCopies
		}
		return model.Book{}, ErrOverRelease
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE books
		 SET status = CASE
			WHEN available_quantity = 0 AND status = 'available' THEN 'loaned'
			WHEN available_quantity > 0 AND status = 'loaned' THEN 'available'
			ELSE status
		 END
		 WHERE id = ?`, id); err != nil {
		return model.Book{}, err
	}
	return scanBook(q.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id=? LIMIT 1`, id))
}

// Categories returns the distinct non-empty categories in the catalogue.
func (r *BookRepo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT category FROM books
		 WHERE category IS NOT NULL AND category <> ''
		 ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cats := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// Stats aggregates inventory counters in a single round trip.
func (r *BookRepo) Stats(ctx context.Context) (model.BookStats, error) {
	var s model.BookStats
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(quantity),0),
			COALESCE(SUM(available_quantity),0),
			COALESCE(SUM(status='available'),0),
			COALESCE(SUM(status='loaned'),0),
			COALESCE(SUM(status='maintenance'),0),
			COALESCE(SUM(status='lost'),0)
		 FROM books`).
		Scan(&s.TotalTitles, &s.TotalCopies, &s.AvailableCopies,
			&s.AvailableTitles, &s.LoanedTitles, &s.MaintenanceTitles, &s.LostTitles)
	return s, err
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
