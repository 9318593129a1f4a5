package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/legallyup/backend/internal/config"
	"github.com/legallyup/backend/internal/database"
	"github.com/legallyup/backend/internal/router"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServer(ctx context.Context, migrate bool) error {
	a, err := bootstrap(ctx, "server")
	if err != nil {
		return err
	}
	defer a.close()

	if migrate {
		if err := database.Migrate(ctx, a.db, a.log); err != nil {
			return err
		}
	}

	pub := a.publisher()
	subs, err := a.subscriptions(pub)
	if err != nil {
		return err
	}

	if a.cfg.Billing.ReconcileOnBoot {
		n, err := subs.ReconcileAll(ctx)
		if err != nil {
			a.log.Error().Err(err).Msg("boot reconcile failed")
		} else {
			a.log.Info().Int("downgraded", n).Msg("boot reconcile done")
		}
	}

	rdb := config.NewRedisClient(a.cfg.Redis)
	if rdb == nil {
		a.log.Warn().Msg("redis unavailable: rate limiting, caching and OTP disabled")
	} else {
		defer rdb.Close()
	}

	var pending sync.WaitGroup
	e := router.New(router.Deps{
		Config:    a.cfg,
		DB:        a.db,
		Redis:     rdb,
		Subs:      subs,
		Publisher: pub,
		Log:       a.log,
		Pending:   &pending,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.App.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Str("env", a.cfg.App.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.log.Info().Msg("shutting down")
		err := srv.Shutdown(shutCtx)
		pending.Wait()
		return err
	})
	return g.Wait()
}
