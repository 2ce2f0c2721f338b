package commands

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/config"
	"github.com/openlib/library-backend/internal/database"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/service"
)

// app bundles the backend wiring the subcommands share. The CLI reads
// connection settings from the environment with local-dev defaults so
// it stays usable without the server's full configuration.
type app struct {
	db     *sql.DB
	rdb    *redis.Client
	store  cache.Store
	books  *service.BookService
	loans  *service.LoanService
	users  *service.UserService
	tokens *repository.TokenRepo
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openApp() (*app, error) {
	db, err := database.Open(database.Params{
		User: envOr("DB_USER", "root"),
		Pass: os.Getenv("DB_PASS"),
		Host: envOr("DB_HOST", "localhost"),
		Port: envOr("DB_PORT", "3306"),
		Name: envOr("DB_NAME", "library"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb := config.NewRedisClient()
	store := cache.New(rdb, config.LoadCacheConfig().DefaultTTL)

	books := repository.NewBookRepo(db)
	loans := repository.NewLoanRepo(db)
	users := repository.NewUserRepo(db)
	runner := repository.NewRunner(db)

	avail := service.NewAvailability(runner, books, store)
	loanSvc := service.NewLoanService(runner, loans, books, avail, store, nil, service.LoanConfig{})
	return &app{
		db:     db,
		rdb:    rdb,
		store:  store,
		books:  service.NewBookService(books, loans, avail, store),
		loans:  loanSvc,
		users:  service.NewUserService(users, loans, store, 0),
		tokens: repository.NewTokenRepo(db),
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

// withApp opens the backend wiring, runs fn with a bounded context and
// closes everything afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, a)
}

// promptPassword reads a password twice without echo and verifies the
// entries match.
func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	fmt.Print("Confirm: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

// confirm asks a yes/no question and reports whether the user agreed.
// --force answers yes without prompting.
func confirm(question string) bool {
	if force {
		return true
	}
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func strOrDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}

func ptrIfSet(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
