package channel

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSink delivers restock/outage/admin notifications via SendGrid,
// adapted from the teacher's alert/channel.SendGridChannel.
type SendGridSink struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
}

// SendGridConfig configures a SendGridSink.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func NewSendGridSink(cfg SendGridConfig) (*SendGridSink, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}
	return &SendGridSink{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		client:    sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

func (s *SendGridSink) Type() SinkType { return SinkTypeEmail }

func (s *SendGridSink) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	personalization := mail.NewPersonalization()
	for _, r := range msg.Recipients {
		personalization.AddTos(mail.NewEmail("", r))
	}

	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject
	m.AddPersonalizations(personalization)
	if msg.Body != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Body))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGridSink) Test(ctx context.Context, recipient string) error {
	if recipient == "" {
		recipient = s.fromEmail
	}
	return s.Send(ctx, Message{
		Subject:    "StockWatch - notification channel test",
		Body:       "Your notification channel is configured. You will receive restock and outage alerts at this address.",
		Recipients: []string{recipient},
	})
}
