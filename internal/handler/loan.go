package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/middleware"
	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/service"
)

// LoanHandler exposes the loan lifecycle over HTTP. Members act on
// their own loans; staff act on anyone's. Returns are staff-only
// because they happen at the desk when the copy comes back.
type LoanHandler struct {
	Loans *service.LoanService
}

func NewLoanHandler(loans *service.LoanService) *LoanHandler {
	return &LoanHandler{Loans: loans}
}

func currentUser(c echo.Context) (uint64, model.Role) {
	uid, _ := c.Get(middleware.CtxUserID).(uint64)
	role, _ := c.Get(middleware.CtxRole).(string)
	return uid, model.Role(role)
}

type createLoanReq struct {
	UserID      uint64     `json:"user_id"`
	BookID      uint64     `json:"book_id" validate:"required"`
	DueDate     *time.Time `json:"due_date"`
	MaxRenewals *int       `json:"max_renewals"`
	Notes       *string    `json:"notes"`
}

// Create borrows a copy. Members borrow for themselves; staff may set
// user_id to borrow on a member's behalf.
func (h *LoanHandler) Create(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	uid, role := currentUser(c)
	target := req.UserID
	if target == 0 {
		target = uid
	}
	if target != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot borrow for another user"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	in := service.CreateLoanInput{
		UserID:      target,
		BookID:      req.BookID,
		MaxRenewals: req.MaxRenewals,
		Notes:       req.Notes,
	}
	if req.DueDate != nil {
		in.DueDate = *req.DueDate
	}
	loan, err := h.Loans.Create(ctx, in)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

// Get returns one loan. Members see only their own.
func (h *LoanHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	loan, err := h.Loans.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	uid, role := currentUser(c)
	if loan.UserID != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, loan)
}

// List returns loans matching query filters (staff view).
func (h *LoanHandler) List(c echo.Context) error {
	skip, limit := pageParams(c)
	f := repository.LoanFilter{
		Status:      model.LoanStatus(c.QueryParam("status")),
		ActiveOnly:  c.QueryParam("active") == "true",
		OverdueOnly: c.QueryParam("overdue") == "true",
		Skip:        skip,
		Limit:       limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	loans, err := h.Loans.List(ctx, f)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// Mine lists the caller's loans.
func (h *LoanHandler) Mine(c echo.Context) error {
	uid, _ := currentUser(c)
	skip, limit := pageParams(c)
	activeOnly := c.QueryParam("active") == "true"
	ctx, cancel := reqCtx(c)
	defer cancel()

	loans, err := h.Loans.ListByUser(ctx, uid, activeOnly, skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// ByUser lists a user's loans. Members see only their own history.
func (h *LoanHandler) ByUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	uid, role := currentUser(c)
	if id != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	skip, limit := pageParams(c)
	activeOnly := c.QueryParam("active") == "true"
	ctx, cancel := reqCtx(c)
	defer cancel()

	loans, err := h.Loans.ListByUser(ctx, id, activeOnly, skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

type returnReq struct {
	ReturnDate *time.Time `json:"return_date"`
	FineAmount float64    `json:"fine_amount"`
	FinePaid   bool       `json:"fine_paid"`
	Notes      *string    `json:"notes"`
}

// Return closes a loan and releases the copy (staff only).
func (h *LoanHandler) Return(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req returnReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	in := service.ReturnInput{
		FineAmount: req.FineAmount,
		FinePaid:   req.FinePaid,
		Notes:      req.Notes,
	}
	if req.ReturnDate != nil {
		in.ReturnDate = *req.ReturnDate
	}
	loan, err := h.Loans.Return(ctx, id, in)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

type renewReq struct {
	DueDate *time.Time `json:"due_date"`
}

// Renew extends a loan's due date. Owner or staff.
func (h *LoanHandler) Renew(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req renewReq
	_ = c.Bind(&req)

	ctx, cancel := reqCtx(c)
	defer cancel()

	current, err := h.Loans.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	uid, role := currentUser(c)
	if current.UserID != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var due time.Time
	if req.DueDate != nil {
		due = *req.DueDate
	}
	loan, err := h.Loans.Renew(ctx, id, due)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

type payFineReq struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// PayFine settles a loan's fine in full. Owner or staff.
func (h *LoanHandler) PayFine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req payFineReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	current, err := h.Loans.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	uid, role := currentUser(c)
	if current.UserID != uid && !role.Staff() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	loan, err := h.Loans.PayFine(ctx, id, req.Amount)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

// Overdue lists unreturned loans past due (staff view).
func (h *LoanHandler) Overdue(c echo.Context) error {
	skip, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	loans, err := h.Loans.Overdue(ctx, skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// Sweep marks every loan past due as OVERDUE and records fines.
// Staff-triggered; the engine has no internal scheduler.
func (h *LoanHandler) Sweep(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	n, err := h.Loans.SweepOverdue(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"swept": n})
}

// Stats returns aggregate loan counters (staff view).
func (h *LoanHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	stats, err := h.Loans.Statistics(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
