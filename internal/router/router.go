// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/handler"
	"github.com/legallyup/backend/internal/middleware"
	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/repository"
	"github.com/legallyup/backend/internal/subscription"
)

// Deps is everything the routes need.  Redis and Publisher may be nil;
// rate limiting, caching and OTP delivery then degrade.
type Deps struct {
	Config    config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Subs      *subscription.Service
	Publisher subscription.Publisher
	Log       zerolog.Logger
	// Pending counts OTP deliveries still running; may be nil.
	Pending *sync.WaitGroup
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())
	e.Use(middleware.NewTokenBucket(d.Config.RateLimit, d.Redis, d.Log))

	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	users := repository.NewUserRepo(d.DB)
	tokens := repository.NewTokenRepo(d.DB)

	RegisterAuth(e, d, users, tokens)
	RegisterSubscription(e, d, users)
	return e
}

// RegisterAuth registers account routes.  Unauthenticated operations
// live under /v1/auth; /v1/me needs a valid access token.
func RegisterAuth(e *echo.Echo, d Deps, users *repository.UserRepo, tokens *repository.TokenRepo) {
	a := handler.NewAuthHandler(d.Config.Auth, users, tokens, d.Subs, d.Log)
	o := &handler.OTPHandler{
		Auth:    d.Config.Auth,
		OTP:     d.Config.OTP,
		Users:   users,
		Tokens:  tokens,
		Pub:     d.Publisher,
		Log:     d.Log,
		Pending: d.Pending,
	}
	if d.Redis != nil {
		o.Store = repository.NewOTPStore(d.Redis, d.Config.OTP.Prefix)
	}

	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)
	g.POST("/send-otp", o.SendOTP)
	g.POST("/reset-password", o.ResetPassword)

	auth := e.Group("/v1", middleware.JWTAuth(d.Config.Auth.JWTSecret))
	auth.GET("/me", a.Me)
}

// RegisterSubscription registers plan, payment, quota and admin routes.
func RegisterSubscription(e *echo.Echo, d Deps, users *repository.UserRepo) {
	s := handler.NewSubscriptionHandler(d.Subs, d.Log)
	docs := handler.NewDocumentHandler(d.Subs, users, d.Log)
	admin := handler.NewAdminHandler(s)

	e.GET("/v1/plans", handler.Plans(d.Subs), middleware.NewRedisCache(d.Config.Cache, d.Redis))

	jwt := middleware.JWTAuth(d.Config.Auth.JWTSecret)

	sub := e.Group("/v1/subscription", jwt)
	sub.POST("/plan", s.SelectPlan)
	sub.POST("/payments", s.ProcessPayment)
	sub.GET("/payments", s.Payments)
	sub.GET("/status", s.Status)
	sub.GET("/plan-changes", s.PlanChanges)

	dg := e.Group("/v1/documents", jwt)
	dg.GET("/quota", docs.Quota)
	dg.POST("/generate", docs.Generate)

	ag := e.Group("/v1/admin", jwt, middleware.RequireRole(model.RoleAdmin))
	ag.POST("/users/:id/reconcile", admin.Reconcile)
	ag.GET("/users/:id/plan-changes", admin.PlanChanges)
}
