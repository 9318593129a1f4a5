package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/legallyup/backend/internal/email"
	"github.com/legallyup/backend/internal/queue"
	"github.com/legallyup/backend/internal/repository"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume notification events and send e-mail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), "worker")
			if err != nil {
				return err
			}
			defer a.close()
			if !a.cfg.RabbitMQ.Enabled() {
				return errors.New("RABBITMQ_URL is not set")
			}

			var sender email.Sender = email.LogSender{Log: a.log}
			if a.cfg.Mail.SendGridAPIKey != "" {
				sender = email.NewSendGridSender(a.cfg.Mail.SendGridAPIKey, "", a.cfg.Mail.From, a.cfg.Mail.FromName)
			} else {
				a.log.Warn().Msg("SENDGRID_API_KEY not set, mail is only logged")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			c := &queue.Consumer{
				URL:    a.cfg.RabbitMQ.URL,
				Queue:  queue.NotificationsQueue,
				Users:  repository.NewUserRepo(a.db),
				Sender: sender,
				Log:    a.log,
			}
			return c.Run(ctx)
		},
	}
}
