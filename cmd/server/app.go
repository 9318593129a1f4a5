package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/database"
	"github.com/legallyup/backend/internal/logging"
	"github.com/legallyup/backend/internal/service"
	"github.com/legallyup/backend/internal/subscription"
)

// app is the state shared by every command: configuration, logger and
// an open database.
type app struct {
	cfg config.Config
	log zerolog.Logger
	db  *sql.DB
}

func bootstrap(ctx context.Context, component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: component,
	})
	db, err := database.Open(ctx, database.Options{
		User:            cfg.DB.User,
		Pass:            cfg.DB.Pass,
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		Name:            cfg.DB.Name,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() { _ = a.db.Close() }

// publisher returns the RabbitMQ publisher, or nil when no broker is
// configured.
func (a *app) publisher() subscription.Publisher {
	if !a.cfg.RabbitMQ.Enabled() {
		return nil
	}
	return service.NewPublisher(a.cfg.RabbitMQ.URL, a.log)
}

func (a *app) subscriptions(pub subscription.Publisher) (*subscription.Service, error) {
	pro, attorney, err := a.cfg.Billing.Prices()
	if err != nil {
		return nil, err
	}
	opts := []subscription.Option{subscription.WithLogger(a.log)}
	if pub != nil {
		opts = append(opts, subscription.WithPublisher(pub))
	}
	return subscription.New(a.db, subscription.Config{
		Period:         a.cfg.Billing.Period(),
		FreeDailyLimit: a.cfg.Billing.FreeDailyLimit,
		ProPrice:       pro,
		AttorneyPrice:  attorney,
	}, opts...), nil
}
