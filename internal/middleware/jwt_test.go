package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/utils"
)

const testSecret = "unit-test-secret"

func doRequest(t *testing.T, mw []echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	require.NoError(t, h(c))
	return rec, c
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, userID, role, 15)
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func TestJWTAuth(t *testing.T) {
	auth := JWTAuth(testSecret)

	rec, _ := doRequest(t, []echo.MiddlewareFunc{auth}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doRequest(t, []echo.MiddlewareFunc{auth}, "Bearer not.a.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with a different secret.
	other, err := utils.NewAccessToken("other-secret", 1, "member", 15)
	require.NoError(t, err)
	rec, _ = doRequest(t, []echo.MiddlewareFunc{auth}, "Bearer "+other.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, c := doRequest(t, []echo.MiddlewareFunc{auth}, bearer(t, 42, "member"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), c.Get(CtxUserID), "subject normalized to uint64")
	assert.Equal(t, "member", c.Get(CtxRole))
}

func TestRequireRole(t *testing.T) {
	chain := []echo.MiddlewareFunc{JWTAuth(testSecret), RequireRole(model.RoleAdmin)}

	rec, _ := doRequest(t, chain, bearer(t, 1, "member"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doRequest(t, chain, bearer(t, 1, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireStaff(t *testing.T) {
	chain := []echo.MiddlewareFunc{JWTAuth(testSecret), RequireStaff()}

	for role, want := range map[string]int{
		"admin":     http.StatusOK,
		"librarian": http.StatusOK,
		"member":    http.StatusForbidden,
	} {
		rec, _ := doRequest(t, chain, bearer(t, 1, role))
		assert.Equal(t, want, rec.Code, role)
	}
}
