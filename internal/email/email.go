// Package email delivers plain-text transactional mail.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultHost is the SendGrid API base URL.
const DefaultHost = "https://api.sendgrid.com"

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("email: no recipient")

// Message is one outgoing mail.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey string
	host   string
	from   *mail.Email
}

// NewSendGridSender returns a sender for apiKey.  An empty host means
// DefaultHost.
func NewSendGridSender(apiKey, host, fromEmail, fromName string) *SendGridSender {
	if host == "" {
		host = DefaultHost
	}
	return &SendGridSender{apiKey: apiKey, host: host, from: mail.NewEmail(fromName, fromEmail)}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	if m.ToEmail == "" {
		return ErrNoRecipient
	}
	msg := mail.NewSingleEmail(s.from, m.Subject, mail.NewEmail(m.ToName, m.ToEmail), m.Text, "")

	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = http.MethodPost
	req.Body = mail.GetRequestBody(msg)
	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender only logs messages.  It is used when no API key is set.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	if m.ToEmail == "" {
		return ErrNoRecipient
	}
	s.Log.Info().Str("to", m.ToEmail).Str("subject", m.Subject).Msg("email delivery skipped, no SendGrid key configured")
	return nil
}
