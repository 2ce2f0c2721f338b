package handler

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/cache"
)

// HealthHandler reports liveness plus the state of the backing stores.
type HealthHandler struct {
	DB    *sql.DB
	Cache cache.Store
}

func NewHealthHandler(db *sql.DB, store cache.Store) *HealthHandler {
	return &HealthHandler{DB: db, Cache: store}
}

// Health returns 200 while the database answers; the cache state is
// reported but never fails the check because the service runs without
// it.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	dbState := "ok"
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		dbState = "down"
		status = http.StatusServiceUnavailable
	}
	cacheState := "ok"
	if err := h.Cache.Ping(ctx); err != nil {
		cacheState = "disabled"
	}
	return c.JSON(status, echo.Map{
		"status":   dbState,
		"database": dbState,
		"cache":    cacheState,
	})
}
