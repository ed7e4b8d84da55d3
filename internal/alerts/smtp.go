package alerts

import (
	"context"
	"fmt"
	"net"
	"time"

	"leadflow_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers an alert to the configured operator recipients.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPSender sends plain-text alert mail over the operator's SMTP server.
type SMTPSender struct {
	host       string
	port       int
	username   string
	password   string
	fromName   string
	fromEmail  string
	recipients []string
}

// NewSMTPSender creates a sender from the alert configuration.
func NewSMTPSender(cfg config.AlertConfig) *SMTPSender {
	return &SMTPSender{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		fromName:   cfg.GetAlertFromName(),
		fromEmail:  cfg.GetAlertFromAddress(),
		recipients: cfg.GetAlertRecipients(),
	}
}

// Send delivers one alert to all recipients.
func (s *SMTPSender) Send(ctx context.Context, subject, body string) error {
	if len(s.recipients) == 0 {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.recipients...); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
