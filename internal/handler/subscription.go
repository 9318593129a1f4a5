package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/subscription"
)

// SubscriptionHandler exposes plan selection, payments and status for
// the authenticated user.
type SubscriptionHandler struct {
	Subs *subscription.Service
	Log  zerolog.Logger
}

func NewSubscriptionHandler(s *subscription.Service, log zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{Subs: s, Log: log}
}

type selectPlanReq struct {
	Plan string `json:"plan"`
}

type paymentReq struct {
	Plan          string          `json:"plan"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
}

type paymentResp struct {
	TransactionID string         `json:"transaction_id"`
	Plan          model.PlanTier `json:"plan"`
	ExpiryDate    *time.Time     `json:"expiry_date"`
}

type statusResp struct {
	IsPaid        bool           `json:"is_paid"`
	PlanType      model.PlanTier `json:"plan_type"`
	ExpiryDate    *time.Time     `json:"expiry_date"`
	DaysRemaining int            `json:"days_remaining"`
}

// SelectPlan handles POST /v1/subscription/plan.  Only the free tier
// can be selected without a payment.
func (h *SubscriptionHandler) SelectPlan(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	var req selectPlanReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	plan, ok := model.ParsePlanTier(req.Plan)
	if !ok {
		return badRequest(c, "plan must be one of free, pro, attorney")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rc, err := h.Subs.SelectPlan(ctx, uid, plan)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"transaction_id": rc.TransactionID,
		"previous_plan":  rc.PreviousPlan,
		"plan":           rc.Plan,
	})
}

// ProcessPayment handles POST /v1/subscription/payments.
func (h *SubscriptionHandler) ProcessPayment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	var req paymentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rc, err := h.Subs.RecordPayment(ctx, subscription.PaymentRequest{
		UserID: uid,
		Plan:   model.PlanTier(req.Plan),
		Amount: req.Amount,
		Method: req.PaymentMethod,
	})
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, paymentResp{
		TransactionID: rc.TransactionID,
		Plan:          rc.Plan,
		ExpiryDate:    rc.Expiry,
	})
}

// Status handles GET /v1/subscription/status.
func (h *SubscriptionHandler) Status(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	st, err := h.Subs.Status(ctx, uid)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, statusResp{
		IsPaid:        st.IsPaid,
		PlanType:      st.Plan,
		ExpiryDate:    st.Expiry,
		DaysRemaining: st.DaysRemaining,
	})
}

// Payments handles GET /v1/subscription/payments, newest first.
func (h *SubscriptionHandler) Payments(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Subs.PaymentHistory(ctx, uid)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if items == nil {
		items = []model.Payment{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": len(items)})
}

// PlanChanges handles GET /v1/subscription/plan-changes.
func (h *SubscriptionHandler) PlanChanges(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	return h.planChanges(c, uid)
}

func (h *SubscriptionHandler) planChanges(c echo.Context, uid uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Subs.PlanHistory(ctx, uid)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if items == nil {
		items = []model.PlanChange{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": len(items)})
}
