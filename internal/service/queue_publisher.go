// Package service holds adapters the HTTP layer and the engine publish
// through.  Publisher sends notification events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/legallyup/backend/internal/metrics"
	q "github.com/legallyup/backend/internal/queue"
)

// Publisher writes events to a durable queue on the default exchange.
// Each publish opens its own connection.
type Publisher struct {
	URL   string
	Queue string
	Log   zerolog.Logger
}

// NewPublisher returns a Publisher for the notifications queue.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{URL: url, Queue: q.NotificationsQueue, Log: log}
}

// Publish sends ev as a persistent JSON message.  Errors are logged
// and returned so the caller can decide to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev q.Envelope) error {
	if err := p.publish(ctx, ev); err != nil {
		metrics.NotificationsPublishFailures.WithLabelValues(ev.Type).Inc()
		p.Log.Warn().Err(err).Str("event", ev.Type).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, ev q.Envelope) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
