package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// AdminHandler holds operator endpoints.  They reuse the subscription
// handler's engine access for an arbitrary user.
type AdminHandler struct {
	*SubscriptionHandler
}

func NewAdminHandler(s *SubscriptionHandler) *AdminHandler {
	return &AdminHandler{SubscriptionHandler: s}
}

func pathUserID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// Reconcile handles POST /v1/admin/users/:id/reconcile.  It heals an
// expired or unbacked paid plan and reports what changed.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	uid, ok := pathUserID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Subs.Reconcile(ctx, uid)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":     uid,
		"is_paid":     res.Entitlement.IsPaid,
		"plan":        res.Entitlement.Plan,
		"expiry_date": res.Entitlement.Expiry,
		"changed":     res.Change != nil,
		"change":      res.Change,
	})
}

// PlanChanges handles GET /v1/admin/users/:id/plan-changes.
func (h *AdminHandler) PlanChanges(c echo.Context) error {
	uid, ok := pathUserID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	return h.planChanges(c, uid)
}
