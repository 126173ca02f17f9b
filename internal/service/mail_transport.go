package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// MailTransport delivers one rendered email
type MailTransport interface {
	Send(ctx context.Context, fromName, fromAddress, to, subject, htmlBody, textBody string) error
}

// SendGridTransport delivers through the SendGrid v3 API
type SendGridTransport struct {
	client *sendgrid.Client
}

// NewSendGridTransport creates a SendGrid-backed transport
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return &SendGridTransport{client: sendgrid.NewSendClient(apiKey)}
}

// Send delivers one message through SendGrid
func (t *SendGridTransport) Send(ctx context.Context, fromName, fromAddress, to, subject, htmlBody, textBody string) error {
	from := mail.NewEmail(fromName, fromAddress)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, textBody, htmlBody)

	resp, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

// LogTransport is the fallback used when no email provider is configured.
// It logs and acknowledges acceptance so delivery never fails ingestion.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a logging stub transport
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send logs the message instead of delivering it
func (t *LogTransport) Send(_ context.Context, _, fromAddress, to, subject, _, _ string) error {
	t.logger.Info("email transport not configured, logging instead",
		zap.String("from", fromAddress),
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

// NewMailTransport picks SendGrid when an API key is configured and the
// logging stub otherwise.
func NewMailTransport(apiKey string, logger *zap.Logger) MailTransport {
	if apiKey == "" {
		return NewLogTransport(logger)
	}
	return NewSendGridTransport(apiKey)
}
