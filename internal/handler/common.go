package handler // handler defines the HTTP handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/middleware"
	"github.com/legallyup/backend/internal/subscription"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated user id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errNoUser
	}
	return id, nil
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// errorJSON writes the uniform error body {"error": msg, "code": code}.
func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return errorJSON(c, http.StatusBadRequest, string(subscription.KindValidation), msg)
}

func unauthorized(c echo.Context, msg string) error {
	return errorJSON(c, http.StatusUnauthorized, "unauthorized", msg)
}

func internalError(c echo.Context) error {
	return errorJSON(c, http.StatusInternalServerError, string(subscription.KindUpstream), "internal error")
}

// engineError maps a subscription failure to its HTTP status.  Upstream
// failures are logged with their cause; the caller only sees a generic
// message.
func engineError(c echo.Context, log zerolog.Logger, err error) error {
	kind := subscription.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case subscription.KindNotFound:
		status = http.StatusNotFound
	case subscription.KindValidation:
		status = http.StatusBadRequest
	case subscription.KindConflict:
		status = http.StatusConflict
	default:
		log.Error().Err(err).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Str("route", c.Path()).
			Msg("subscription operation failed")
	}
	return errorJSON(c, status, string(kind), subscription.Message(err))
}
