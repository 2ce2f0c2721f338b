package cache

import "fmt"

// Key builders. Every write path invalidates the per-record keys for
// the touched entity plus the coarse list/search/statistics prefix of
// its entity type, so stale query results never outlive a write.

const (
	// BooksPrefix covers list, search, category and statistics caches
	// for books (books:list:..., books:categories, books:statistics).
	BooksPrefix = "books:"
	// LoansPrefix covers loan list and aggregate caches
	// (loans:overdue, loans:statistics, loans:list:...).
	LoansPrefix = "loans:"
	// UsersPrefix covers user list and statistics caches.
	UsersPrefix = "users:"

	// OverdueLoansKey caches the first page of the overdue-loan list.
	OverdueLoansKey = "loans:overdue"
	// LoanStatsKey caches aggregate loan counters.
	LoanStatsKey = "loans:statistics"
	// BookCategoriesKey caches the distinct category list.
	BookCategoriesKey = "books:categories"
	// BookStatsKey caches aggregate inventory counters.
	BookStatsKey = "books:statistics"
	// UserStatsKey caches aggregate user counters.
	UserStatsKey = "users:statistics"
)

func BookKey(id uint64) string       { return fmt.Sprintf("book:%d", id) }
func BookISBNKey(isbn string) string { return "book:isbn:" + isbn }

func BooksListKey(category string, skip, limit int) string {
	return fmt.Sprintf("books:list:%s:%d:%d", category, skip, limit)
}

func UserKey(id uint64) string           { return fmt.Sprintf("user:%d", id) }
func UserEmailKey(email string) string   { return "user:email:" + email }
func UserUsernameKey(name string) string { return "user:username:" + name }

// UserLoansKey caches a user's active-loan list.
func UserLoansKey(userID uint64) string { return fmt.Sprintf("user:%d:loans", userID) }
