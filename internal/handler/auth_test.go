package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legallyup/backend/internal/queue"
)

func register(t *testing.T, h *harness, email, password string) map[string]any {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"username": "Jane", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func tokenOf(body map[string]any, part string) string {
	return body[part].(map[string]any)["token"].(string)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	body := register(t, h, "Jane@Example.com", "password123")
	u := body["user"].(map[string]any)
	assert.Equal(t, "jane@example.com", u["email"])
	assert.Equal(t, "free", u["plan"])
	assert.Equal(t, "USER", u["role"])
	assert.NotEmpty(t, tokenOf(body, "access"))
	assert.NotEmpty(t, tokenOf(body, "refresh"))

	rec := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"username": "Jane", "email": "jane@example.com", "password": "password123",
	})
	assertError(t, rec, http.StatusConflict, "conflict")

	for name, req := range map[string]map[string]any{
		"short password": {"username": "a", "email": "a@example.com", "password": "short"},
		"bad email":      {"username": "a", "email": "nope", "password": "password123"},
		"no username":    {"email": "b@example.com", "password": "password123"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/auth/register", "", req)
			assertError(t, rec, http.StatusBadRequest, "validation")
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	h := newHarness(t)
	register(t, h, "me@example.com", "password123")

	rec := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "me@example.com", "password": "wrong-pass"})
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	rec = h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "ghost@example.com", "password": "password123"})
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "ME@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	access := tokenOf(decode(t, rec), "access")

	rec = h.do(t, http.MethodPost, "/v1/subscription/payments", access, map[string]any{
		"plan": "pro", "payment_method": "card", "amount": "19.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pro", body["user"].(map[string]any)["plan"])
	assert.Equal(t, true, body["is_paid"])
}

func TestRefreshRotationAndLogout(t *testing.T) {
	h := newHarness(t)
	body := register(t, h, "rot@example.com", "password123")
	refresh := tokenOf(body, "refresh")

	rec := h.do(t, http.MethodPost, "/v1/auth/refresh-access", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, tokenOf(decode(t, rec), "access"))

	rec = h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := tokenOf(decode(t, rec), "refresh")
	assert.NotEqual(t, refresh, rotated)

	rec = h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = h.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]any{"refresh_token": rotated})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": rotated})
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = h.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]any{})
	assertError(t, rec, http.StatusBadRequest, "validation")
}

func TestLogout_BearerRevokesAllSessions(t *testing.T) {
	h := newHarness(t)
	first := register(t, h, "all@example.com", "password123")
	rec := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "all@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)

	rec = h.do(t, http.MethodPost, "/v1/auth/logout", tokenOf(second, "access"), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, b := range []map[string]any{first, second} {
		rec = h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": tokenOf(b, "refresh")})
		assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	}
}

func TestSendOTP_UnknownEmailIsSilent(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "nobody@example.com", "purpose": "forgot"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.pending.Wait()
	assert.Empty(t, h.redis.Keys())
	assert.Nil(t, h.pub.last(queue.TypeOTPRequested))

	rec = h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "nobody@example.com", "purpose": "signup"})
	assertError(t, rec, http.StatusBadRequest, "validation")
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)
	body := register(t, h, "reset@example.com", "password123")
	oldRefresh := tokenOf(body, "refresh")

	rec := h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "reset@example.com", "purpose": "forgot"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.pending.Wait()
	assert.Equal(t, []string{"otp:forgot:reset@example.com"}, h.redis.Keys())
	ev := h.pub.last(queue.TypeOTPRequested)
	require.NotNil(t, ev)
	require.NotNil(t, ev.OTPRequested)
	code := ev.OTPRequested.Code
	assert.Len(t, code, 6)
	assert.Equal(t, "reset@example.com", ev.OTPRequested.Email)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = h.do(t, http.MethodPost, "/v1/auth/reset-password", "", map[string]any{
		"email": "reset@example.com", "otp": wrong, "newPassword": "new-password-1",
	})
	assertError(t, rec, http.StatusBadRequest, "validation")

	rec = h.do(t, http.MethodPost, "/v1/auth/reset-password", "", map[string]any{
		"email": "reset@example.com", "otp": code, "newPassword": "new-password-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the code is single use
	rec = h.do(t, http.MethodPost, "/v1/auth/reset-password", "", map[string]any{
		"email": "reset@example.com", "otp": code, "newPassword": "new-password-2",
	})
	assertError(t, rec, http.StatusBadRequest, "validation")

	rec = h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": oldRefresh})
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "reset@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "reset@example.com", "password": "new-password-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordReset_LocksAfterAttempts(t *testing.T) {
	h := newHarness(t)
	register(t, h, "lock@example.com", "password123")
	rec := h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "lock@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.pending.Wait()
	code := h.pub.last(queue.TypeOTPRequested).OTPRequested.Code

	wrong := "999999"
	if code == wrong {
		wrong = "888888"
	}
	req := map[string]any{"email": "lock@example.com", "otp": wrong, "newPassword": "new-password-1"}
	assertError(t, h.do(t, http.MethodPost, "/v1/auth/reset-password", "", req), http.StatusBadRequest, "validation")
	assertError(t, h.do(t, http.MethodPost, "/v1/auth/reset-password", "", req), http.StatusBadRequest, "validation")
	assertError(t, h.do(t, http.MethodPost, "/v1/auth/reset-password", "", req), http.StatusBadRequest, "otp_locked")

	req["otp"] = code
	assertError(t, h.do(t, http.MethodPost, "/v1/auth/reset-password", "", req), http.StatusBadRequest, "validation")
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, queue.Envelope) error {
	return errors.New("broker down")
}

func TestSendOTP_SameResponseWhenDeliveryFails(t *testing.T) {
	h := newHarness(t)
	register(t, h, "known@example.com", "password123")
	h.otpHandler.Pub = failingPublisher{}

	known := h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "known@example.com"})
	unknown := h.do(t, http.MethodPost, "/v1/auth/send-otp", "", map[string]any{"email": "stranger@example.com"})
	h.pending.Wait()

	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, unknown.Code, known.Code)
	assert.JSONEq(t, unknown.Body.String(), known.Body.String())
	// the code was stored before the publish failed
	assert.Equal(t, []string{"otp:forgot:known@example.com"}, h.redis.Keys())
}
