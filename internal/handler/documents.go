package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/document"
	"github.com/legallyup/backend/internal/repository"
	"github.com/legallyup/backend/internal/subscription"
)

// DocumentHandler gates and renders document generations.
type DocumentHandler struct {
	Subs  *subscription.Service
	Users *repository.UserRepo
	Log   zerolog.Logger
}

func NewDocumentHandler(s *subscription.Service, u *repository.UserRepo, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{Subs: s, Users: u, Log: log}
}

type quotaResp struct {
	CanGenerate          bool `json:"can_generate"`
	DailyLimit           *int `json:"daily_limit"`
	GenerationsToday     int  `json:"generations_today"`
	RemainingGenerations *int `json:"remaining_generations"`
}

type generateReq struct {
	DocumentType string             `json:"document_type"`
	Title        string             `json:"title"`
	Sections     []document.Section `json:"sections"`
}

// Quota handles GET /v1/documents/quota.
func (h *DocumentHandler) Quota(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	q, err := h.Subs.Quota(ctx, uid)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, quotaResp{
		CanGenerate:          q.CanGenerate,
		DailyLimit:           q.DailyLimit,
		GenerationsToday:     q.GenerationsToday,
		RemainingGenerations: q.Remaining,
	})
}

// Generate handles POST /v1/documents/generate.  The PDF is rendered
// first and the generation counted after, so a request that cannot be
// rendered never spends quota.  A denied request gets 429 and no PDF.
func (h *DocumentHandler) Generate(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c, "unauthorized")
	}
	var req generateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	docType := strings.TrimSpace(req.DocumentType)
	if docType == "" {
		docType = subscription.DefaultDocumentType
	}
	doc := document.Document{
		Type:     docType,
		Title:    req.Title,
		Sections: req.Sections,
		Created:  time.Now().UTC(),
	}
	if err := document.Validate(doc); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if u, err := h.Users.GetByID(ctx, uid); err == nil {
		doc.Author = u.Username
	}
	pdf, err := document.Render(doc)
	if err != nil {
		h.Log.Error().Err(err).Uint64("user_id", uid).Str("document_type", docType).Msg("render pdf")
		return internalError(c)
	}

	dec, err := h.Subs.TryConsume(ctx, uid, docType)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !dec.Allowed {
		return errorJSON(c, http.StatusTooManyRequests, "quota_exceeded", dec.Reason)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", docType+".pdf"))
	return c.Blob(http.StatusCreated, "application/pdf", pdf)
}
