package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/service"
)

// BookHandler exposes the catalogue over HTTP. Reads are public;
// mutations are registered behind staff-role middleware.
type BookHandler struct {
	Books *service.BookService
	Loans *service.LoanService
}

func NewBookHandler(books *service.BookService, loans *service.LoanService) *BookHandler {
	return &BookHandler{Books: books, Loans: loans}
}

type bookReq struct {
	ISBN            string   `json:"isbn" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Author          string   `json:"author" validate:"required"`
	Publisher       *string  `json:"publisher"`
	PublicationYear *int     `json:"publication_year"`
	Edition         *string  `json:"edition"`
	Description     *string  `json:"description"`
	Category        *string  `json:"category"`
	Language        string   `json:"language"`
	Pages           *int     `json:"pages"`
	Status          string   `json:"status"`
	Location        *string  `json:"location"`
	Quantity        int      `json:"quantity"`
	Price           *float64 `json:"price"`
}

// bookView is a book plus its derived loanability flag, mirroring how
// loan responses carry their derived fields.
type bookView struct {
	model.Book
	IsAvailable bool `json:"is_available"`
}

func viewBook(b model.Book) bookView {
	return bookView{Book: b, IsAvailable: b.IsAvailable()}
}

func viewBooks(books []model.Book) []bookView {
	out := make([]bookView, len(books))
	for i := range books {
		out[i] = viewBook(books[i])
	}
	return out
}

func (r *bookReq) toModel() model.Book {
	return model.Book{
		ISBN:            r.ISBN,
		Title:           r.Title,
		Author:          r.Author,
		Publisher:       r.Publisher,
		PublicationYear: r.PublicationYear,
		Edition:         r.Edition,
		Description:     r.Description,
		Category:        r.Category,
		Language:        r.Language,
		Pages:           r.Pages,
		Status:          model.BookStatus(r.Status),
		Location:        r.Location,
		Quantity:        r.Quantity,
		Price:           r.Price,
	}
}

// Create adds a title to the catalogue.
func (h *BookHandler) Create(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b := req.toModel()
	if err := h.Books.Create(ctx, &b); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, viewBook(b))
}

// Get returns one book by id.
func (h *BookHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Books.Get(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBook(b))
}

// GetByISBN returns one book by ISBN.
func (h *BookHandler) GetByISBN(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Books.GetByISBN(ctx, c.Param("isbn"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBook(b))
}

// List returns catalogue pages filtered by query parameters.
func (h *BookHandler) List(c echo.Context) error {
	skip, limit := pageParams(c)
	f := repository.BookFilter{
		Category: c.QueryParam("category"),
		Author:   c.QueryParam("author"),
		Status:   model.BookStatus(c.QueryParam("status")),
		Skip:     skip,
		Limit:    limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	books, err := h.Books.List(ctx, f)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBooks(books))
}

// Search matches q against title, author and ISBN.
func (h *BookHandler) Search(c echo.Context) error {
	_, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	books, err := h.Books.Search(ctx, c.QueryParam("q"), limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBooks(books))
}

// Available lists titles with at least one loanable copy.
func (h *BookHandler) Available(c echo.Context) error {
	skip, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	books, err := h.Books.Available(ctx, skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBooks(books))
}

// ByAuthor lists titles whose author matches the given substring.
func (h *BookHandler) ByAuthor(c echo.Context) error {
	skip, limit := pageParams(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	books, err := h.Books.ByAuthor(ctx, c.QueryParam("author"), skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBooks(books))
}

// Categories returns the distinct category list.
func (h *BookHandler) Categories(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	cats, err := h.Books.Categories(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

// Stats returns aggregate inventory counters.
func (h *BookHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	stats, err := h.Books.Statistics(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Update rewrites a book's metadata, status, total quantity and price.
func (h *BookHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b := req.toModel()
	b.ID = id
	if b.Status == "" {
		b.Status = model.BookAvailable
	}
	if err := h.Books.Update(ctx, &b); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBook(b))
}

type stockReq struct {
	Delta int `json:"delta" validate:"required"`
}

// AdjustStock applies an administrative correction to the loanable
// counter.
func (h *BookHandler) AdjustStock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req stockReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Books.AdjustStock(ctx, id, req.Delta)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, viewBook(b))
}

// Delete removes a title without unreturned loans.
func (h *BookHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Books.Delete(ctx, id); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LoansForBook lists the loans referencing a book (staff view).
func (h *BookHandler) LoansForBook(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	skip, limit := pageParams(c)
	activeOnly := c.QueryParam("active") == "true"
	ctx, cancel := reqCtx(c)
	defer cancel()

	loans, err := h.Loans.ListByBook(ctx, id, activeOnly, skip, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// ----- shared request helpers -----

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func pageParams(c echo.Context) (skip, limit int) {
	if n, err := strconv.Atoi(c.QueryParam("skip")); err == nil && n > 0 {
		skip = n
	}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		limit = n
	}
	return skip, limit
}
