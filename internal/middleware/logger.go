package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/metrics"
)

// RequestLogger writes one line per request and records its latency.
// It expects echo's RequestID middleware to run first.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}
			elapsed := time.Since(start)

			req, res := c.Request(), c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(res.Status)
			metrics.RequestDuration.WithLabelValues(req.Method, route, status).Observe(elapsed.Seconds())

			ev := log.Info()
			switch {
			case res.Status >= 500:
				ev = log.Error().Err(err)
			case res.Status >= 400:
				ev = log.Warn()
			}
			ev = ev.
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("route", route).
				Str("uri", req.RequestURI).
				Int("status", res.Status).
				Dur("latency", elapsed).
				Str("ip", c.RealIP())
			if id, ok := UserID(c); ok {
				ev = ev.Uint64("user_id", id)
			}
			ev.Msg("request")
			return nil
		}
	}
}
