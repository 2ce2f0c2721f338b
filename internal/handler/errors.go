package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openlib/library-backend/internal/service"
)

// writeErr translates service errors into HTTP responses. Unknown
// entities map to 404; every named business-rule refusal maps to 400
// with its code so clients can branch without parsing messages.
// Anything uncoded is an infrastructure failure and stays opaque.
func writeErr(c echo.Context, err error) error {
	code := service.CodeOf(err)
	switch code {
	case service.CodeNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": code})
	case "":
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": code})
	}
}
