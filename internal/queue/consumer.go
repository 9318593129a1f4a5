package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/email"
	"github.com/legallyup/backend/internal/model"
)

// UserLookup resolves the recipient of account events.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Consumer reads the notifications queue and turns each event into an
// e-mail.
type Consumer struct {
	URL    string
	Queue  string
	Users  UserLookup
	Sender email.Sender
	Log    zerolog.Logger
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Lost
// connections are re-dialed with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Queue == "" {
		c.Queue = NotificationsQueue
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("notifier: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn().Err(err).Msg("notifier: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("notifier: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(ctx, d.Body); err != nil {
			c.Log.Error().Err(err).Str("message_type", d.Type).Msg("notifier: handle message failed")
			// reject without requeue so a poison message cannot loop
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and sends the matching e-mail.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev Envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	msg, err := c.compose(ctx, ev)
	if err != nil {
		return err
	}
	if err := c.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	c.Log.Info().Str("event", ev.Type).Str("to", msg.ToEmail).Msg("notification sent")
	return nil
}

func (c *Consumer) recipient(ctx context.Context, userID uint64) (model.User, error) {
	u, err := c.Users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	return u, nil
}

func (c *Consumer) compose(ctx context.Context, ev Envelope) (email.Message, error) {
	switch ev.Type {
	case TypePaymentRecorded:
		p := ev.PaymentRecorded
		if p == nil {
			return email.Message{}, errors.New("payment.recorded without payload")
		}
		u, err := c.recipient(ctx, p.UserID)
		if err != nil {
			return email.Message{}, err
		}
		return email.Message{
			ToEmail: u.Email,
			ToName:  u.Username,
			Subject: fmt.Sprintf("Your %s plan is active", p.Plan),
			Text: fmt.Sprintf("Hi %s,\n\nWe received your payment of %s for the %s plan.\nTransaction: %s\nYour plan is active until %s.\n\nThe LegallyUp team",
				u.Username, p.Amount, p.Plan, p.TransactionID, p.ExpiresAt),
		}, nil

	case TypePlanChanged:
		p := ev.PlanChanged
		if p == nil {
			return email.Message{}, errors.New("plan.changed without payload")
		}
		u, err := c.recipient(ctx, p.UserID)
		if err != nil {
			return email.Message{}, err
		}
		why := "as requested"
		switch model.ChangeReason(p.Reason) {
		case model.ReasonExpiration:
			why = "because your subscription period ended"
		case model.ReasonSystem:
			why = "because no active payment was found"
		}
		return email.Message{
			ToEmail: u.Email,
			ToName:  u.Username,
			Subject: fmt.Sprintf("Your plan changed to %s", p.NewPlan),
			Text: fmt.Sprintf("Hi %s,\n\nYour plan changed from %s to %s %s.\nYou can upgrade again at any time.\n\nThe LegallyUp team",
				u.Username, p.OldPlan, p.NewPlan, why),
		}, nil

	case TypeOTPRequested:
		p := ev.OTPRequested
		if p == nil {
			return email.Message{}, errors.New("otp.requested without payload")
		}
		return email.Message{
			ToEmail: p.Email,
			Subject: "Your LegallyUp verification code",
			Text: fmt.Sprintf("Your verification code is %s.\nIt expires at %s. If you did not request it, ignore this message.",
				p.Code, p.ExpiresAt),
		}, nil
	}
	return email.Message{}, fmt.Errorf("unknown event type %q", ev.Type)
}
