// Package notify delivers hand-off notifications to clinic staff.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

const defaultFromName = "Clinic Booking Assistant"

// EmailSender sends one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is an outbound email. Tag groups messages in the provider's
// reporting (SendGrid category, SES message tag).
type EmailMessage struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	Body    string
	HTML    string
	Tag     string
}

// htmlOrText falls back to the plain body for providers that require an HTML part.
func (m EmailMessage) htmlOrText() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// envelope carries the sender identity shared by every provider.
type envelope struct {
	fromEmail string
	fromName  string
}

func newEnvelope(email, name string) envelope {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFromName
	}
	return envelope{fromEmail: strings.TrimSpace(email), fromName: name}
}

func (e envelope) address() string {
	return fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends emails through the SendGrid v3 API.
type SendGridSender struct {
	envelope
	client sendGridAPI
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendGridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		envelope: newEnvelope(cfg.FromEmail, cfg.FromName),
		client:   client,
		logger:   logger,
	}
}

func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		msg.htmlOrText(),
	)
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Tag != "" {
		m.AddCategories(msg.Tag)
	}
	return m
}

// Send delivers msg. Any status of 400 or above is an error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("notify: sendgrid request failed", "to", msg.To, "tag", msg.Tag, "error", err)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("notify: sendgrid rejected message", "to", msg.To, "status", resp.StatusCode, "response", resp.Body)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("notify: email accepted", "provider", "sendgrid", "to", msg.To, "tag", msg.Tag, "status", resp.StatusCode)
	return nil
}

// StubEmailSender only logs. Bootstrap falls back to it when no provider
// credentials are configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("notify: email not sent, no provider configured", "to", msg.To, "subject", msg.Subject, "tag", msg.Tag)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
