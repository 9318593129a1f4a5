package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/legallyup/backend/internal/subscription"
)

// Plans handles GET /v1/plans.  The list is public and cacheable.
func Plans(s *subscription.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"items": s.Catalogue()})
	}
}
