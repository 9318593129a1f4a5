package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/queue"
	"github.com/legallyup/backend/internal/repository"
	"github.com/legallyup/backend/internal/subscription"
	"github.com/legallyup/backend/internal/utils"
)

// PurposeForgot is the only OTP purpose the product issues today.
const PurposeForgot = "forgot"

// OTPStore keeps hashed one-time codes with a lifetime.
type OTPStore interface {
	Put(ctx context.Context, purpose, email, codeHash string, ttl time.Duration) (time.Time, error)
	Consume(ctx context.Context, purpose, email, codeHash string, maxAttempts int) error
}

// OTPHandler serves the password reset flow.
type OTPHandler struct {
	Auth   config.AuthConfig
	OTP    config.OTPConfig
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Store  OTPStore
	Pub    subscription.Publisher
	Log    zerolog.Logger

	// Pending tracks deliveries still running after their response;
	// the server waits on it during shutdown.
	Pending *sync.WaitGroup
}

type sendOTPReq struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type resetPasswordReq struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// SendOTP issues a code for a known email and hands it to the notifier.
// Known and unknown emails get the same 200: storing and publishing the
// code happen after the response, off the request path.
func (h *OTPHandler) SendOTP(c echo.Context) error {
	var req sendOTPReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		purpose = PurposeForgot
	}
	if !validEmail(email) {
		return badRequest(c, "invalid email")
	}
	if purpose != PurposeForgot {
		return badRequest(c, "unsupported purpose")
	}
	if h.Store == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "unavailable", "one-time codes are unavailable")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	sent := echo.Map{"message": "if the email is registered, a code has been sent"}
	if _, err := h.Users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusOK, sent)
		}
		return internalError(c)
	}

	bg := context.WithoutCancel(c.Request().Context())
	if h.Pending != nil {
		h.Pending.Add(1)
	}
	go func() {
		if h.Pending != nil {
			defer h.Pending.Done()
		}
		ctx, cancel := context.WithTimeout(bg, requestTimeout)
		defer cancel()
		if err := h.deliver(ctx, purpose, email); err != nil {
			h.Log.Error().Err(err).Str("email", email).Msg("otp not delivered")
		}
	}()
	return c.JSON(http.StatusOK, sent)
}

// deliver stores a fresh code for email and publishes it for sending.
func (h *OTPHandler) deliver(ctx context.Context, purpose, email string) error {
	code, err := utils.NewOTPCode(h.OTP.Length)
	if err != nil {
		return err
	}
	exp, err := h.Store.Put(ctx, purpose, email, utils.HashOTP(h.Auth.JWTSecret, purpose, email, code), h.OTP.TTL)
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if h.Pub == nil {
		h.Log.Warn().Str("email", email).Msg("no notifier configured, otp not delivered")
		return nil
	}
	ev := queue.Envelope{
		Type:       queue.TypeOTPRequested,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		OTPRequested: &queue.OTPRequestedEvent{
			Email:     email,
			Purpose:   purpose,
			Code:      code,
			ExpiresAt: exp.Format(time.RFC3339),
		},
	}
	if err := h.Pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish otp: %w", err)
	}
	return nil
}

// ResetPassword redeems a code, sets the new password and signs the
// user out everywhere.
func (h *OTPHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" || req.NewPassword == "" {
		return badRequest(c, "email, otp and newPassword are required")
	}
	if msg := checkPassword(req.NewPassword); msg != "" {
		return badRequest(c, msg)
	}
	if h.Store == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "unavailable", "one-time codes are unavailable")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hash := utils.HashOTP(h.Auth.JWTSecret, PurposeForgot, email, code)
	if err := h.Store.Consume(ctx, PurposeForgot, email, hash, h.OTP.MaxAttempts); err != nil {
		switch {
		case errors.Is(err, repository.ErrOTPLocked):
			return errorJSON(c, http.StatusBadRequest, "otp_locked", "too many attempts, request a new code")
		case errors.Is(err, repository.ErrOTPMismatch), errors.Is(err, repository.ErrOTPNotFound):
			return badRequest(c, "invalid or expired code")
		}
		h.Log.Error().Err(err).Msg("consume otp")
		return internalError(c)
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return badRequest(c, "invalid or expired code")
		}
		return internalError(c)
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, req.NewPassword, h.Auth.BcryptCost); err != nil {
		return internalError(c)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		return internalError(c)
	}
	h.Log.Info().Uint64("user_id", u.ID).Msg("password reset")
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
