package middleware // middleware holds the echo middleware shared by all routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/legallyup/backend/internal/utils"
)

// Context keys set by JWTAuth.
const (
	KeyUserID = "user_id" // uint64
	KeyRole   = "role"    // string
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the user id and role claims in the request context.  The provided
// secret must match the one used when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return unauthorized(c, "invalid token")
			}
			id, err := claims.UserID()
			if err != nil || id == 0 {
				return unauthorized(c, "invalid claims")
			}
			c.Set(KeyUserID, id)
			c.Set(KeyRole, claims.Role)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "code": "unauthorized"})
}
