package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/queue"
	"github.com/openlib/library-backend/internal/repository"
)

// DefaultDailyFineRate is charged per whole day a loan is overdue.
const DefaultDailyFineRate = 0.50

// DefaultLoanPeriod applies when a loan or renewal does not name a due
// date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// LoanStore is the storage contract of the loan lifecycle manager.
// Implemented by repository.LoanRepo.
type LoanStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, l *model.Loan) error
	GetByID(ctx context.Context, id uint64) (model.Loan, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Loan, error)
	FinishTx(ctx context.Context, tx *sql.Tx, id uint64, returnDate time.Time, fine float64, finePaid bool, notes *string) error
	Renew(ctx context.Context, id uint64, newDue time.Time) (bool, error)
	MarkFinePaid(ctx context.Context, id uint64) (bool, error)
	List(ctx context.Context, f repository.LoanFilter) ([]model.Loan, error)
	ListByUser(ctx context.Context, userID uint64, activeOnly bool, skip, limit int) ([]model.Loan, error)
	ListByBook(ctx context.Context, bookID uint64, activeOnly bool, skip, limit int) ([]model.Loan, error)
	OverdueTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Loan, error)
	MarkOverdueTx(ctx context.Context, tx *sql.Tx, id uint64, fine float64) error
	Stats(ctx context.Context, now time.Time) (model.LoanStats, error)
}

// BookReader is the slice of the book store the loan manager needs.
type BookReader interface {
	GetByID(ctx context.Context, id uint64) (model.Book, error)
}

// Events publishes loan lifecycle events to the message broker.
// Publishing is fire-and-forget: failures never fail the operation.
type Events interface {
	Publish(ctx context.Context, ev queue.LoanEvent) error
}

// LoanDetail is a loan plus its derived fields, all computed from one
// captured reference time so a single response cannot disagree with
// itself about overdue status.
type LoanDetail struct {
	model.Loan
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
	CanRenew    bool `json:"can_renew"`
}

// LoanConfig tunes the lifecycle rules.
type LoanConfig struct {
	DailyFineRate float64       // fine per whole day overdue
	LoanPeriod    time.Duration // default loan/renewal length
	PageSize      int           // default page size for cached lists
}

// LoanService owns loan state transitions and fine computation. Copy
// accounting goes through the availability manager inside the same
// transaction as the loan write, so the two effects are all-or-nothing.
type LoanService struct {
	tx     TxRunner
	loans  LoanStore
	books  BookReader
	avail  *Availability
	cache  cache.Store
	events Events
	cfg    LoanConfig
	now    func() time.Time
}

func NewLoanService(tx TxRunner, loans LoanStore, books BookReader, avail *Availability, store cache.Store, events Events, cfg LoanConfig) *LoanService {
	if cfg.DailyFineRate <= 0 {
		cfg.DailyFineRate = DefaultDailyFineRate
	}
	if cfg.LoanPeriod <= 0 {
		cfg.LoanPeriod = DefaultLoanPeriod
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &LoanService{
		tx: tx, loans: loans, books: books, avail: avail,
		cache: store, events: events, cfg: cfg, now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests use it to pin "now".
func (s *LoanService) SetClock(now func() time.Time) { s.now = now }

// CreateLoanInput carries the caller-supplied fields for a new loan.
type CreateLoanInput struct {
	UserID      uint64
	BookID      uint64
	DueDate     time.Time // zero means loan date + default period
	MaxRenewals *int      // nil means the default allowance
	Notes       *string
}

// Create borrows one copy: it re-validates availability, atomically
// decrements the book's counter and inserts the loan row in a single
// transaction. If any step fails, no copy is consumed and no loan
// record exists.
func (s *LoanService) Create(ctx context.Context, in CreateLoanInput) (LoanDetail, error) {
	now := s.now()
	loanDate := now
	due := in.DueDate
	if due.IsZero() {
		due = loanDate.Add(s.cfg.LoanPeriod)
	}
	if !due.After(loanDate) {
		return LoanDetail{}, Errf(CodeInvalidInput, "due date must be after loan date")
	}
	maxRenewals := model.DefaultMaxRenewals
	if in.MaxRenewals != nil {
		maxRenewals = *in.MaxRenewals
		if maxRenewals < 0 || maxRenewals > model.MaxRenewalsCap {
			return LoanDetail{}, Errf(CodeInvalidInput, "max renewals must be between 0 and %d", model.MaxRenewalsCap)
		}
	}

	book, err := s.books.GetByID(ctx, in.BookID)
	if err != nil {
		if err == sql.ErrNoRows {
			return LoanDetail{}, Errf(CodeBookUnavailable, "book is not available for loan")
		}
		return LoanDetail{}, err
	}
	if !book.IsAvailable() {
		return LoanDetail{}, Errf(CodeBookUnavailable, "book is not available for loan")
	}

	loan := model.Loan{
		UserID:      in.UserID,
		BookID:      in.BookID,
		LoanDate:    loanDate,
		DueDate:     due,
		Status:      model.LoanActive,
		MaxRenewals: maxRenewals,
		Notes:       in.Notes,
	}
	var taken model.Book
	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		// The conditional decrement re-validates the copy count, so a
		// race against another borrower fails here, not below zero.
		b, err := s.avail.AdjustTx(ctx, tx, in.BookID, -1)
		if err != nil {
			return err
		}
		taken = b
		return s.loans.CreateTx(ctx, tx, &loan)
	})
	if err != nil {
		return LoanDetail{}, mapStoreErr(err)
	}

	s.avail.Invalidate(ctx, &taken)
	s.invalidateLoanCaches(ctx, loan.UserID)
	s.publish(ctx, queue.LoanEvent{
		Kind:       queue.LoanCreated,
		LoanID:     loan.ID,
		UserID:     loan.UserID,
		BookID:     loan.BookID,
		BookTitle:  book.Title,
		DueDate:    loan.DueDate.Format(time.RFC3339),
		OccurredAt: now.Format(time.RFC3339),
	})
	return s.detail(loan, now), nil
}

// ReturnInput carries the caller-supplied fields for a return.
type ReturnInput struct {
	ReturnDate time.Time // zero means "now"
	FineAmount float64   // floor for the computed fine
	FinePaid   bool
	Notes      *string
}

// Return closes a loan and puts the copy back on the shelf. The same
// reference time drives the overdue check and the fine, and the loan
// update and availability release share one transaction. Returning a
// loan that is not out fails with LOAN_NOT_ACTIVE and leaves the
// counter untouched.
func (s *LoanService) Return(ctx context.Context, loanID uint64, in ReturnInput) (LoanDetail, error) {
	now := s.now()
	ref := in.ReturnDate
	if ref.IsZero() {
		ref = now
	}
	var out model.Loan
	var released model.Book
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		loan, err := s.loans.GetForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return mapStoreErr(err)
		}
		if !loan.Out() {
			return Errf(CodeLoanNotActive, "loan is not active")
		}
		fine := in.FineAmount
		if computed := loan.Fine(ref, s.cfg.DailyFineRate); computed > fine {
			fine = computed
		}
		if err := s.loans.FinishTx(ctx, tx, loanID, ref, fine, in.FinePaid, in.Notes); err != nil {
			return mapStoreErr(err)
		}
		released, err = s.avail.AdjustTx(ctx, tx, loan.BookID, +1)
		if err != nil {
			return err
		}
		loan.Status = model.LoanReturned
		loan.ReturnDate = &ref
		loan.FineAmount = fine
		loan.FinePaid = in.FinePaid
		if in.Notes != nil {
			loan.Notes = in.Notes
		}
		out = loan
		return nil
	})
	if err != nil {
		return LoanDetail{}, err
	}

	s.avail.Invalidate(ctx, &released)
	s.invalidateLoanCaches(ctx, out.UserID)
	s.publish(ctx, queue.LoanEvent{
		Kind:       queue.LoanReturned,
		LoanID:     out.ID,
		UserID:     out.UserID,
		BookID:     out.BookID,
		DueDate:    out.DueDate.Format(time.RFC3339),
		ReturnDate: ref.Format(time.RFC3339),
		FineAmount: out.FineAmount,
		OccurredAt: now.Format(time.RFC3339),
	})
	return s.detail(out, now), nil
}

// Renew extends a loan's due date. Each refusal names its reason so
// the caller can tell "not active" from "allowance used up" from
// "already overdue".
func (s *LoanService) Renew(ctx context.Context, loanID uint64, newDue time.Time) (LoanDetail, error) {
	now := s.now()
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return LoanDetail{}, mapStoreErr(err)
	}
	switch {
	case !loan.Out():
		return LoanDetail{}, Errf(CodeLoanNotActive, "loan is not active")
	case loan.IsOverdue(now):
		return LoanDetail{}, Errf(CodeLoanOverdue, "loan is overdue and cannot be renewed")
	case loan.RenewalCount >= loan.MaxRenewals:
		return LoanDetail{}, Errf(CodeMaxRenewals, "maximum renewals reached (%d)", loan.MaxRenewals)
	}
	if newDue.IsZero() {
		newDue = now.Add(s.cfg.LoanPeriod)
	}
	if !newDue.After(now) {
		return LoanDetail{}, Errf(CodeInvalidInput, "new due date must be in the future")
	}
	applied, err := s.loans.Renew(ctx, loanID, newDue)
	if err != nil {
		return LoanDetail{}, err
	}
	if !applied {
		// Lost a race with a concurrent return or renewal; re-derive.
		fresh, err := s.loans.GetByID(ctx, loanID)
		if err != nil {
			return LoanDetail{}, mapStoreErr(err)
		}
		switch {
		case !fresh.Out():
			return LoanDetail{}, Errf(CodeLoanNotActive, "loan is not active")
		case fresh.Status == model.LoanOverdue:
			return LoanDetail{}, Errf(CodeLoanOverdue, "loan is overdue and cannot be renewed")
		}
		return LoanDetail{}, Errf(CodeMaxRenewals, "maximum renewals reached (%d)", fresh.MaxRenewals)
	}

	loan.DueDate = newDue
	loan.RenewalCount++
	loan.Status = model.LoanRenewed
	s.invalidateLoanCaches(ctx, loan.UserID)
	return s.detail(loan, now), nil
}

// SweepOverdue marks every loan past due at the time of the call as
// OVERDUE and records its fine, in one batch transaction. Swept loans
// leave the selection set, so a second sweep immediately after touches
// nothing. Returns the number of loans updated.
func (s *LoanService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now()
	count := 0
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		due, err := s.loans.OverdueTx(ctx, tx, now)
		if err != nil {
			return err
		}
		for i := range due {
			fine := due[i].Fine(now, s.cfg.DailyFineRate)
			if err := s.loans.MarkOverdueTx(ctx, tx, due[i].ID, fine); err != nil {
				return err
			}
		}
		count = len(due)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		// One coarse invalidation for the whole batch.
		s.cache.DeleteByPrefix(ctx, cache.LoansPrefix)
	}
	return count, nil
}

// PayFine settles a loan's fine in full. Partial payments are refused.
func (s *LoanService) PayFine(ctx context.Context, loanID uint64, amount float64) (LoanDetail, error) {
	now := s.now()
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return LoanDetail{}, mapStoreErr(err)
	}
	switch {
	case loan.FineAmount == 0:
		return LoanDetail{}, Errf(CodeNoFineDue, "no fine owed on this loan")
	case loan.FinePaid:
		return LoanDetail{}, Errf(CodeFineAlreadyPaid, "fine already paid")
	case amount < loan.FineAmount:
		return LoanDetail{}, Errf(CodeInsufficientPayment, "payment %.2f is less than fine %.2f", amount, loan.FineAmount)
	}
	applied, err := s.loans.MarkFinePaid(ctx, loanID)
	if err != nil {
		return LoanDetail{}, err
	}
	if !applied {
		return LoanDetail{}, Errf(CodeFineAlreadyPaid, "fine already paid")
	}
	loan.FinePaid = true
	s.invalidateLoanCaches(ctx, loan.UserID)
	return s.detail(loan, now), nil
}

// Get fetches one loan with derived fields.
func (s *LoanService) Get(ctx context.Context, loanID uint64) (LoanDetail, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return LoanDetail{}, mapStoreErr(err)
	}
	return s.detail(loan, s.now()), nil
}

// ListByUser returns a user's loans. The first page of the active-only
// view is served read-through from the cache; derived fields are
// always recomputed at read time so a cached record can never pin a
// stale overdue flag.
func (s *LoanService) ListByUser(ctx context.Context, userID uint64, activeOnly bool, skip, limit int) ([]LoanDetail, error) {
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	cacheable := activeOnly && skip == 0 && limit == s.cfg.PageSize
	key := cache.UserLoansKey(userID)
	if cacheable {
		var cached []model.Loan
		if s.cache.Get(ctx, key, &cached) {
			return s.details(cached), nil
		}
	}
	loans, err := s.loans.ListByUser(ctx, userID, activeOnly, skip, limit)
	if err != nil {
		return nil, err
	}
	if cacheable && len(loans) > 0 {
		s.cache.Set(ctx, key, loans, 0)
	}
	return s.details(loans), nil
}

// ListByBook returns the loans referencing a book.
func (s *LoanService) ListByBook(ctx context.Context, bookID uint64, activeOnly bool, skip, limit int) ([]LoanDetail, error) {
	loans, err := s.loans.ListByBook(ctx, bookID, activeOnly, skip, limit)
	if err != nil {
		return nil, err
	}
	return s.details(loans), nil
}

// List returns loans matching the filter.
func (s *LoanService) List(ctx context.Context, f repository.LoanFilter) ([]LoanDetail, error) {
	if f.OverdueOnly {
		f.Now = s.now()
	}
	loans, err := s.loans.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.details(loans), nil
}

// Overdue returns unreturned loans past due, cached briefly because
// the view is expensive and tolerates slight staleness.
func (s *LoanService) Overdue(ctx context.Context, skip, limit int) ([]LoanDetail, error) {
	now := s.now()
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	cacheable := skip == 0 && limit == s.cfg.PageSize
	if cacheable {
		var cached []model.Loan
		if s.cache.Get(ctx, cache.OverdueLoansKey, &cached) {
			return s.details(cached), nil
		}
	}
	loans, err := s.loans.List(ctx, repository.LoanFilter{OverdueOnly: true, Now: now, Skip: skip, Limit: limit})
	if err != nil {
		return nil, err
	}
	if cacheable && len(loans) > 0 {
		s.cache.Set(ctx, cache.OverdueLoansKey, loans, 3*time.Minute)
	}
	return s.details(loans), nil
}

// Statistics returns aggregate loan counters, cached for five minutes.
func (s *LoanService) Statistics(ctx context.Context) (model.LoanStats, error) {
	var stats model.LoanStats
	if s.cache.Get(ctx, cache.LoanStatsKey, &stats) {
		return stats, nil
	}
	stats, err := s.loans.Stats(ctx, s.now())
	if err != nil {
		return model.LoanStats{}, err
	}
	s.cache.Set(ctx, cache.LoanStatsKey, stats, 5*time.Minute)
	return stats, nil
}

func (s *LoanService) detail(l model.Loan, now time.Time) LoanDetail {
	return LoanDetail{
		Loan:        l,
		IsOverdue:   l.IsOverdue(now),
		DaysOverdue: l.DaysOverdue(now),
		CanRenew:    l.CanRenew(now),
	}
}

func (s *LoanService) details(loans []model.Loan) []LoanDetail {
	now := s.now()
	out := make([]LoanDetail, len(loans))
	for i := range loans {
		out[i] = s.detail(loans[i], now)
	}
	return out
}

// invalidateLoanCaches evicts the user's loan list and every
// aggregate loan cache after a write.
func (s *LoanService) invalidateLoanCaches(ctx context.Context, userID uint64) {
	s.cache.Delete(ctx, cache.UserLoansKey(userID))
	s.cache.DeleteByPrefix(ctx, cache.LoansPrefix)
}

func (s *LoanService) publish(ctx context.Context, ev queue.LoanEvent) {
	if s.events == nil {
		return
	}
	// Errors are logged by the publisher; a broker outage must not
	// fail the loan operation.
	_ = s.events.Publish(ctx, ev)
}
