package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/subscription"
	"github.com/legallyup/backend/internal/testdb"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	db := testdb.Open(t)
	return New(Deps{
		Config: config.Config{
			Auth: config.AuthConfig{JWTSecret: "router-secret", AccessTTLMin: 15, RefreshTTLDays: 30, BcryptCost: 4},
		},
		DB:   db,
		Subs: subscription.New(db, subscription.DefaultConfig()),
		Log:  zerolog.Nop(),
	})
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNew_PublicRoutes(t *testing.T) {
	e := newTestEcho(t)

	rec := serve(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, http.MethodGet, "/v1/plans", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"attorney"`)

	rec = serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "legallyup_http_request_duration_seconds")
}

func TestNew_ProtectedRoutes(t *testing.T) {
	e := newTestEcho(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/v1/me"},
		{http.MethodPost, "/v1/subscription/plan"},
		{http.MethodPost, "/v1/subscription/payments"},
		{http.MethodGet, "/v1/subscription/payments"},
		{http.MethodGet, "/v1/subscription/status"},
		{http.MethodGet, "/v1/subscription/plan-changes"},
		{http.MethodGet, "/v1/documents/quota"},
		{http.MethodPost, "/v1/documents/generate"},
		{http.MethodPost, "/v1/admin/users/1/reconcile"},
		{http.MethodGet, "/v1/admin/users/1/plan-changes"},
	} {
		rec := serve(e, r.method, r.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
	}
}

func TestNew_RegisterThenStatus(t *testing.T) {
	e := newTestEcho(t)
	rec := serve(e, http.MethodPost, "/v1/auth/register",
		`{"username":"Sam","email":"sam@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"plan":"free"`)
}

func TestNew_OTPWithoutRedis(t *testing.T) {
	e := newTestEcho(t)
	rec := serve(e, http.MethodPost, "/v1/auth/send-otp", `{"email":"x@example.com","purpose":"forgot"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
