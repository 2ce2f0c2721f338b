// Server entry point: wires configuration, storage, cache, services
// and the HTTP surface together.
package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/openlib/library-backend/internal/cache"
	"github.com/openlib/library-backend/internal/config"
	"github.com/openlib/library-backend/internal/database"
	"github.com/openlib/library-backend/internal/handler"
	"github.com/openlib/library-backend/internal/middleware"
	"github.com/openlib/library-backend/internal/queue"
	"github.com/openlib/library-backend/internal/repository"
	"github.com/openlib/library-backend/internal/router"
	"github.com/openlib/library-backend/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(database.Params{
		User:     cfg.DBUser,
		Pass:     cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cacheCfg := config.LoadCacheConfig()
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; running without cache and rate limiting")
	}
	var store cache.Store
	if cacheCfg.Enabled {
		store = cache.New(rdb, cacheCfg.DefaultTTL)
	} else {
		store = cache.Disabled()
	}

	books := repository.NewBookRepo(db)
	loans := repository.NewLoanRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	runner := repository.NewRunner(db)

	avail := service.NewAvailability(runner, books, store)
	loanSvc := service.NewLoanService(runner, loans, books, avail, store, queue.NewPublisher(), service.LoanConfig{
		DailyFineRate: cfg.DailyFineRate,
		LoanPeriod:    time.Duration(cfg.LoanPeriodDays) * 24 * time.Hour,
	})
	bookSvc := service.NewBookService(books, loans, avail, store)
	userSvc := service.NewUserService(users, loans, store, cfg.BcryptCost)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.Register(e, router.Handlers{
		Health: handler.NewHealthHandler(db, store),
		Auth:   handler.NewAuthHandler(cfg, userSvc, tokens),
		Books:  handler.NewBookHandler(bookSvc, loanSvc),
		Loans:  handler.NewLoanHandler(loanSvc),
		Users:  handler.NewUserHandler(userSvc),
	}, cfg.JWTSecret)

	// Background consumer writes loan events to logs/loans.log and
	// reconnects on broker failures.
	go func() {
		if err := queue.StartLoanConsumer(); err != nil {
			log.Printf("loan consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
