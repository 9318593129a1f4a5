package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/document"
	"github.com/legallyup/backend/internal/middleware"
	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/queue"
	"github.com/legallyup/backend/internal/repository"
	"github.com/legallyup/backend/internal/subscription"
	"github.com/legallyup/backend/internal/testdb"
	"github.com/legallyup/backend/internal/utils"
)

const testSecret = "test-secret"

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []queue.Envelope
}

func (p *capturePublisher) Publish(_ context.Context, ev queue.Envelope) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) last(typ string) *queue.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			ev := p.events[i]
			return &ev
		}
	}
	return nil
}

type harness struct {
	e      *echo.Echo
	db     *sql.DB
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	subs   *subscription.Service
	clock  *clock
	pub    *capturePublisher
	redis  *miniredis.Miniredis
	auth   config.AuthConfig

	otpHandler *OTPHandler
	pending    sync.WaitGroup
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testdb.Open(t)
	h := &harness{
		e:      echo.New(),
		db:     db,
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		clock:  &clock{now: day0},
		pub:    &capturePublisher{},
		redis:  miniredis.RunT(t),
		auth: config.AuthConfig{
			JWTSecret:      testSecret,
			AccessTTLMin:   15,
			RefreshTTLDays: 30,
			BcryptCost:     bcrypt.MinCost,
		},
	}
	h.subs = subscription.New(db, subscription.DefaultConfig(),
		subscription.WithClock(h.clock.Now),
		subscription.WithPublisher(h.pub))

	rdb := redis.NewClient(&redis.Options{Addr: h.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	a := NewAuthHandler(h.auth, h.users, h.tokens, h.subs, log)
	o := &OTPHandler{
		Auth:    h.auth,
		OTP:     config.OTPConfig{TTL: 10 * time.Minute, Length: 6, MaxAttempts: 3},
		Users:   h.users,
		Tokens:  h.tokens,
		Store:   repository.NewOTPStore(rdb, "otp"),
		Pub:     h.pub,
		Log:     log,
		Pending: &h.pending,
	}
	h.otpHandler = o
	s := NewSubscriptionHandler(h.subs, log)
	d := NewDocumentHandler(h.subs, h.users, log)
	adm := NewAdminHandler(s)
	jwt := middleware.JWTAuth(testSecret)

	h.e.GET("/healthz", Health(db))
	h.e.GET("/v1/plans", Plans(h.subs))
	h.e.POST("/v1/auth/register", a.Register)
	h.e.POST("/v1/auth/login", a.Login)
	h.e.POST("/v1/auth/refresh", a.Refresh)
	h.e.POST("/v1/auth/refresh-access", a.RefreshAccess)
	h.e.POST("/v1/auth/logout", a.Logout)
	h.e.POST("/v1/auth/send-otp", o.SendOTP)
	h.e.POST("/v1/auth/reset-password", o.ResetPassword)
	h.e.GET("/v1/me", a.Me, jwt)
	h.e.POST("/v1/subscription/plan", s.SelectPlan, jwt)
	h.e.POST("/v1/subscription/payments", s.ProcessPayment, jwt)
	h.e.GET("/v1/subscription/payments", s.Payments, jwt)
	h.e.GET("/v1/subscription/status", s.Status, jwt)
	h.e.GET("/v1/subscription/plan-changes", s.PlanChanges, jwt)
	h.e.GET("/v1/documents/quota", d.Quota, jwt)
	h.e.POST("/v1/documents/generate", d.Generate, jwt)
	h.e.POST("/v1/admin/users/:id/reconcile", adm.Reconcile, jwt, middleware.RequireRole(model.RoleAdmin))
	h.e.GET("/v1/admin/users/:id/plan-changes", adm.PlanChanges, jwt, middleware.RequireRole(model.RoleAdmin))
	return h
}

// user creates an account and returns its id and a bearer token.
func (h *harness) user(t *testing.T, email, role string) (uint64, string) {
	t.Helper()
	id, err := h.users.Create(context.Background(), "u", email, "password123", role, bcrypt.MinCost)
	require.NoError(t, err)
	tok, err := utils.NewAccessToken(testSecret, id, role, 15)
	require.NoError(t, err)
	return id, tok.Token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestPlans(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 3)
	free := items[0].(map[string]any)
	assert.Equal(t, "free", free["tier"])
	assert.EqualValues(t, 3, free["daily_generations"])
	assert.Nil(t, items[1].(map[string]any)["daily_generations"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/v1/subscription/status", "/v1/documents/quota", "/v1/me"} {
		rec := h.do(t, http.MethodGet, path, "", nil)
		assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	}
	rec := h.do(t, http.MethodGet, "/v1/me", "not-a-jwt", nil)
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestProcessPayment_ThenStatus(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "pay@example.com", model.RoleUser)

	rec := h.do(t, http.MethodPost, "/v1/subscription/payments", tok, map[string]any{
		"plan": "pro", "payment_method": "card", "amount": "19.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.True(t, strings.HasPrefix(body["transaction_id"].(string), "txn_"))
	assert.Equal(t, "pro", body["plan"])
	assert.Equal(t, day0.Add(30*24*time.Hour).Format(time.RFC3339), body["expiry_date"])

	rec = h.do(t, http.MethodGet, "/v1/subscription/status", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode(t, rec)
	assert.Equal(t, true, st["is_paid"])
	assert.Equal(t, "pro", st["plan_type"])
	assert.EqualValues(t, 30, st["days_remaining"])

	h.clock.Advance(31 * 24 * time.Hour)
	rec = h.do(t, http.MethodGet, "/v1/subscription/status", tok, nil)
	st = decode(t, rec)
	assert.Equal(t, false, st["is_paid"])
	assert.Equal(t, "free", st["plan_type"])
	assert.Nil(t, st["expiry_date"])
	assert.EqualValues(t, 0, st["days_remaining"])

	rec = h.do(t, http.MethodGet, "/v1/subscription/plan-changes", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "expiration", items[1].(map[string]any)["reason"])
}

func TestProcessPayment_Validation(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "bad@example.com", model.RoleUser)

	cases := map[string]map[string]any{
		"free plan":       {"plan": "free", "payment_method": "card", "amount": "1.00"},
		"unknown plan":    {"plan": "gold", "payment_method": "card", "amount": "1.00"},
		"negative amount": {"plan": "pro", "payment_method": "card", "amount": "-5"},
		"zero amount":     {"plan": "pro", "payment_method": "card", "amount": "0"},
		"missing method":  {"plan": "attorney", "amount": "49.99"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/subscription/payments", tok, body)
			assertError(t, rec, http.StatusBadRequest, "validation")
		})
	}

	rec := h.do(t, http.MethodGet, "/v1/subscription/payments", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["total"])
}

func TestPaymentHistory_NewestFirst(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "hist@example.com", model.RoleUser)

	for _, plan := range []string{"pro", "attorney"} {
		rec := h.do(t, http.MethodPost, "/v1/subscription/payments", tok, map[string]any{
			"plan": plan, "payment_method": "card", "amount": 10,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		h.clock.Advance(time.Hour)
	}

	rec := h.do(t, http.MethodGet, "/v1/subscription/payments", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "attorney", items[0].(map[string]any)["plan"])
	assert.Equal(t, "pro", items[1].(map[string]any)["plan"])
}

func TestSelectPlan(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "sel@example.com", model.RoleUser)

	rec := h.do(t, http.MethodPost, "/v1/subscription/plan", tok, map[string]any{"plan": "free"})
	assertError(t, rec, http.StatusConflict, "conflict")

	rec = h.do(t, http.MethodPost, "/v1/subscription/plan", tok, map[string]any{"plan": "pro"})
	assertError(t, rec, http.StatusBadRequest, "validation")

	rec = h.do(t, http.MethodPost, "/v1/subscription/plan", tok, map[string]any{"plan": "platinum"})
	assertError(t, rec, http.StatusBadRequest, "validation")

	rec = h.do(t, http.MethodPost, "/v1/subscription/payments", tok, map[string]any{
		"plan": "pro", "payment_method": "card", "amount": "19.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/subscription/plan", tok, map[string]any{"plan": "free"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "pro", body["previous_plan"])
	assert.Equal(t, "free", body["plan"])
	assert.NotEmpty(t, body["transaction_id"])
}

func TestDocuments_FreeQuota(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "docs@example.com", model.RoleUser)

	rec := h.do(t, http.MethodGet, "/v1/documents/quota", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode(t, rec)
	assert.Equal(t, true, q["can_generate"])
	assert.EqualValues(t, 3, q["daily_limit"])
	assert.EqualValues(t, 3, q["remaining_generations"])

	req := map[string]any{
		"document_type": "nda",
		"sections":      []map[string]string{{"heading": "Parties", "body": "Alice and Bob."}},
	}
	for i := 0; i < 3; i++ {
		rec = h.do(t, http.MethodPost, "/v1/documents/generate", tok, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	}

	rec = h.do(t, http.MethodPost, "/v1/documents/generate", tok, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "quota_exceeded", body["code"])
	assert.Equal(t, subscription.DeniedMessage, body["error"])

	rec = h.do(t, http.MethodGet, "/v1/documents/quota", tok, nil)
	q = decode(t, rec)
	assert.Equal(t, false, q["can_generate"])
	assert.EqualValues(t, 3, q["generations_today"])
	assert.EqualValues(t, 0, q["remaining_generations"])

	h.clock.Advance(24 * time.Hour)
	rec = h.do(t, http.MethodPost, "/v1/documents/generate", tok, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDocuments_InvalidInputSpendsNoQuota(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "bounds@example.com", model.RoleUser)

	bad := []map[string]any{
		{"document_type": "nda", "title": strings.Repeat("t", document.MaxTitleLen+1)},
		{"document_type": "nda", "sections": []map[string]string{{"body": strings.Repeat("b", document.MaxBodyLen+1)}}},
		{"document_type": "nda", "sections": make([]map[string]string, document.MaxSections+1)},
		{"document_type": strings.Repeat("d", 65)},
	}
	for _, req := range bad {
		rec := h.do(t, http.MethodPost, "/v1/documents/generate", tok, req)
		assertError(t, rec, http.StatusBadRequest, "validation")
	}

	rec := h.do(t, http.MethodGet, "/v1/documents/quota", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode(t, rec)
	assert.EqualValues(t, 0, q["generations_today"])
	assert.EqualValues(t, 3, q["remaining_generations"])
}

func TestDocuments_PaidUnmetered(t *testing.T) {
	h := newHarness(t)
	_, tok := h.user(t, "paid@example.com", model.RoleUser)
	rec := h.do(t, http.MethodPost, "/v1/subscription/payments", tok, map[string]any{
		"plan": "attorney", "payment_method": "card", "amount": "49.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	for i := 0; i < 5; i++ {
		rec = h.do(t, http.MethodPost, "/v1/documents/generate", tok, map[string]any{"document_type": "eula"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = h.do(t, http.MethodGet, "/v1/documents/quota", tok, nil)
	q := decode(t, rec)
	assert.Equal(t, true, q["can_generate"])
	assert.Nil(t, q["daily_limit"])
	assert.Nil(t, q["remaining_generations"])
	assert.EqualValues(t, 5, q["generations_today"])
}

func TestAdmin(t *testing.T) {
	h := newHarness(t)
	uid, userTok := h.user(t, "member@example.com", model.RoleUser)
	_, adminTok := h.user(t, "admin@example.com", model.RoleAdmin)

	rec := h.do(t, http.MethodPost, "/v1/subscription/payments", userTok, map[string]any{
		"plan": "pro", "payment_method": "card", "amount": "19.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	path := "/v1/admin/users/" + strconv.FormatUint(uid, 10) + "/reconcile"
	rec = h.do(t, http.MethodPost, path, userTok, nil)
	assertError(t, rec, http.StatusForbidden, "forbidden")

	rec = h.do(t, http.MethodPost, path, adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["changed"])

	h.clock.Advance(30 * 24 * time.Hour)
	rec = h.do(t, http.MethodPost, path, adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, "free", body["plan"])

	rec = h.do(t, http.MethodPost, path, adminTok, nil)
	assert.Equal(t, false, decode(t, rec)["changed"])

	rec = h.do(t, http.MethodGet, "/v1/admin/users/"+strconv.FormatUint(uid, 10)+"/plan-changes", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["total"])

	rec = h.do(t, http.MethodPost, "/v1/admin/users/abc/reconcile", adminTok, nil)
	assertError(t, rec, http.StatusBadRequest, "validation")
	rec = h.do(t, http.MethodPost, "/v1/admin/users/9999/reconcile", adminTok, nil)
	assertError(t, rec, http.StatusNotFound, "not_found")
}
