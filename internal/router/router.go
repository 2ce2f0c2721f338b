// Package router wires the HTTP routes to their handlers and applies
// the authentication and role middleware per group.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/handler"
	"github.com/openlib/library-backend/internal/middleware"
	"github.com/openlib/library-backend/internal/model"
)

// Handlers carries every handler the router mounts.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	Books  *handler.BookHandler
	Loans  *handler.LoanHandler
	Users  *handler.UserHandler
}

// Register mounts all routes. Catalogue reads are public so guests can
// browse; everything touching loans or accounts requires a token, and
// staff/admin checks stack per route on top of JWTAuth.
func Register(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", h.Health.Health)

	// Session management; logout also works with only a refresh token,
	// so the group carries no JWT middleware.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/refresh-access", h.Auth.RefreshAccess)
	auth.POST("/logout", h.Auth.Logout)

	// Public catalogue reads. Static segments before :id so echo does
	// not swallow them as parameters.
	e.GET("/v1/books", h.Books.List)
	e.GET("/v1/books/search", h.Books.Search)
	e.GET("/v1/books/available", h.Books.Available)
	e.GET("/v1/books/categories", h.Books.Categories)
	e.GET("/v1/books/by-author", h.Books.ByAuthor)
	e.GET("/v1/books/isbn/:isbn", h.Books.GetByISBN)
	e.GET("/v1/books/:id", h.Books.Get)

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))

	v1.GET("/me", h.Auth.Me)

	staff := middleware.RequireStaff()
	admin := middleware.RequireRole(model.RoleAdmin)

	// Catalogue mutations and inventory views.
	v1.POST("/books", h.Books.Create, staff)
	v1.PUT("/books/:id", h.Books.Update, staff)
	v1.PATCH("/books/:id/stock", h.Books.AdjustStock, staff)
	v1.DELETE("/books/:id", h.Books.Delete, staff)
	v1.GET("/books/stats", h.Books.Stats, staff)
	v1.GET("/books/:id/loans", h.Books.LoansForBook, staff)

	// Loan lifecycle. Ownership checks for member access live in the
	// handlers; the router only gates the staff-wide views.
	v1.POST("/loans", h.Loans.Create)
	v1.GET("/loans", h.Loans.List, staff)
	v1.GET("/loans/mine", h.Loans.Mine)
	v1.GET("/loans/overdue", h.Loans.Overdue, staff)
	v1.GET("/loans/stats", h.Loans.Stats, staff)
	v1.POST("/loans/sweep", h.Loans.Sweep, staff)
	v1.GET("/loans/user/:id", h.Loans.ByUser)
	v1.GET("/loans/:id", h.Loans.Get)
	v1.POST("/loans/:id/return", h.Loans.Return, staff)
	v1.POST("/loans/:id/renew", h.Loans.Renew)
	v1.POST("/loans/:id/pay-fine", h.Loans.PayFine)

	// Account administration.
	v1.POST("/users", h.Users.Create, admin)
	v1.GET("/users", h.Users.List, admin)
	v1.GET("/users/search", h.Users.Search, admin)
	v1.GET("/users/stats", h.Users.Stats, admin)
	v1.GET("/users/:id", h.Users.Get)
	v1.PUT("/users/:id", h.Users.Update)
	v1.POST("/users/:id/change-password", h.Users.ChangePassword)
	v1.POST("/users/:id/role", h.Users.SetRole, admin)
	v1.DELETE("/users/:id", h.Users.Delete, admin)
}
