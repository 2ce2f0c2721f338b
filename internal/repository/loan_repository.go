package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/openlib/library-backend/internal/model"
)

// LoanRepo provides data access to the loans table. Loans are never
// hard-deleted; terminal states are reached by status updates only.
// Mutations that pair with an availability change expose Tx variants
// so the loan row and the book counter commit or roll back together.
type LoanRepo struct{ DB *sql.DB }

func NewLoanRepo(db *sql.DB) *LoanRepo { return &LoanRepo{DB: db} }

const loanColumns = `id, user_id, book_id, loan_date, due_date, return_date, status,
	renewal_count, max_renewals, fine_amount, fine_paid, notes, created_at, updated_at`

func scanLoan(scan func(dest ...any) error) (model.Loan, error) {
	var l model.Loan
	var ret sql.NullTime
	var notes sql.NullString
	err := scan(&l.ID, &l.UserID, &l.BookID, &l.LoanDate, &l.DueDate, &ret, &l.Status,
		&l.RenewalCount, &l.MaxRenewals, &l.FineAmount, &l.FinePaid, &notes,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return model.Loan{}, err
	}
	if ret.Valid {
		t := ret.Time
		l.ReturnDate = &t
	}
	l.Notes = strPtr(notes)
	return l, nil
}

// CreateTx inserts a loan within the given transaction and queries the
// row back to populate defaults and timestamps.
func (r *LoanRepo) CreateTx(ctx context.Context, tx *sql.Tx, l *model.Loan) error {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO loans (user_id, book_id, loan_date, due_date, status,
			renewal_count, max_renewals, fine_amount, fine_paid, notes)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.UserID, l.BookID, l.LoanDate, l.DueDate, l.Status,
		l.RenewalCount, l.MaxRenewals, l.FineAmount, l.FinePaid, l.Notes)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	created, err := scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id=? LIMIT 1`, l.ID).Scan)
	if err != nil {
		return err
	}
	*l = created
	return nil
}

// GetByID fetches a loan by primary key.
func (r *LoanRepo) GetByID(ctx context.Context, id uint64) (model.Loan, error) {
	return scanLoan(r.DB.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id=? LIMIT 1`, id).Scan)
}

// GetForUpdateTx fetches a loan inside a transaction with a row lock,
// so a status check and the following update cannot interleave with a
// concurrent return of the same loan.
func (r *LoanRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Loan, error) {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	return scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id=? LIMIT 1 FOR UPDATE`, id).Scan)
}

// FinishTx marks a loan returned within the given transaction. The
// status guard makes a second return a no-op at the storage level.
func (r *LoanRepo) FinishTx(ctx context.Context, tx *sql.Tx, id uint64, returnDate time.Time, fine float64, finePaid bool, notes *string) error {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	res, err := q.ExecContext(ctx,
		`UPDATE loans
		 SET return_date=?, status='returned', fine_amount=?, fine_paid=?, notes=COALESCE(?, notes)
		 WHERE id=? AND status IN ('active','renewed','overdue')`,
		returnDate, fine, finePaid, notes, id)
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

// Renew extends the due date and bumps the renewal counter. The guard
// re-checks the allowance atomically; it reports whether the update
// applied so the caller can re-derive the refusal reason.
func (r *LoanRepo) Renew(ctx context.Context, id uint64, newDue time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE loans
		 SET due_date=?, renewal_count=renewal_count+1, status='renewed'
		 WHERE id=? AND status IN ('active','renewed') AND renewal_count < max_renewals`,
		newDue, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFinePaid settles an outstanding fine. It applies only when a
// fine is owed and not yet paid; the caller re-reads to report why a
// no-op happened.
func (r *LoanRepo) MarkFinePaid(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE loans SET fine_paid=1 WHERE id=? AND fine_amount > 0 AND fine_paid=0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoanFilter narrows List results. Zero values mean "no filter".
type LoanFilter struct {
	UserID      uint64
	BookID      uint64
	Status      model.LoanStatus
	ActiveOnly  bool
	OverdueOnly bool
	Now         time.Time
	Skip        int
	Limit       int
}

// List returns loans matching the filter, newest first.
func (r *LoanRepo) List(ctx context.Context, f LoanFilter) ([]model.Loan, error) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.BookID != 0 {
		conds = append(conds, "book_id = ?")
		args = append(args, f.BookID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.ActiveOnly {
		// Every loan still holding a copy, swept or not.
		conds = append(conds, "status IN ('active','renewed','overdue')")
	}
	if f.OverdueOnly {
		// Both swept loans and those the sweep has not reached yet.
		conds = append(conds, "(status='overdue' OR (status IN ('active','renewed') AND due_date < ?))")
		args = append(args, f.Now)
	}
	q := `SELECT ` + loanColumns + ` FROM loans`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY loan_date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, pageLimit(f.Limit), f.Skip)
	return r.queryLoans(ctx, q, args...)
}

// ListByUser returns a user's loans, optionally only those still out.
func (r *LoanRepo) ListByUser(ctx context.Context, userID uint64, activeOnly bool, skip, limit int) ([]model.Loan, error) {
	return r.List(ctx, LoanFilter{UserID: userID, ActiveOnly: activeOnly, Skip: skip, Limit: limit})
}

// ListByBook returns a book's loans, optionally only those still out.
func (r *LoanRepo) ListByBook(ctx context.Context, bookID uint64, activeOnly bool, skip, limit int) ([]model.Loan, error) {
	return r.List(ctx, LoanFilter{BookID: bookID, ActiveOnly: activeOnly, Skip: skip, Limit: limit})
}

// OverdueTx selects unreturned loans past due at the reference time,
// locked for update so the sweep can rewrite them in the same
// transaction. Loans already swept to OVERDUE are not reselected.
func (r *LoanRepo) OverdueTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans
	      WHERE status IN ('active','renewed') AND due_date < ? ORDER BY due_date`
	if tx != nil {
		rows, err := tx.QueryContext(ctx, q+" FOR UPDATE", now)
		if err != nil {
			return nil, err
		}
		return collectLoans(rows)
	}
	return r.queryLoans(ctx, q, now)
}

// MarkOverdueTx rewrites one loan's status and fine during a sweep.
func (r *LoanRepo) MarkOverdueTx(ctx context.Context, tx *sql.Tx, id uint64, fine float64) error {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	_, err := q.ExecContext(ctx,
		`UPDATE loans SET status='overdue', fine_amount=? WHERE id=?`, fine, id)
	return err
}

// ActiveCountByBook counts unreturned loans holding copies of a book.
func (r *LoanRepo) ActiveCountByBook(ctx context.Context, bookID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id=? AND status IN ('active','renewed','overdue')`,
		bookID).Scan(&n)
	return n, err
}

// ActiveCountByUser counts a user's unreturned loans.
func (r *LoanRepo) ActiveCountByUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id=? AND status IN ('active','renewed','overdue')`,
		userID).Scan(&n)
	return n, err
}

// Stats aggregates loan counters in a single round trip. A loan counts
// as overdue when already swept or when still active past its due date.
func (r *LoanRepo) Stats(ctx context.Context, now time.Time) (model.LoanStats, error) {
	var s model.LoanStats
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(status IN ('active','renewed')),0),
			COALESCE(SUM(status='overdue' OR (status IN ('active','renewed') AND due_date < ?)),0),
			COALESCE(SUM(status='returned'),0)
		 FROM loans`, now).
		Scan(&s.TotalLoans, &s.ActiveLoans, &s.OverdueLoans, &s.ReturnedLoans)
	return s, err
}

func (r *LoanRepo) queryLoans(ctx context.Context, q string, args ...any) ([]model.Loan, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]model.Loan, error) {
	defer rows.Close()
	loans := make([]model.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows.Scan)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
