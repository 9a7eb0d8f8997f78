// Package notify delivers account emails over SMTP
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/findosh/coinwatch/internal/config"
	"github.com/findosh/coinwatch/internal/logging"
	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email config missing")

// Dialer sends composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends plain-text emails through an SMTP relay
type EmailNotifier struct {
	from   string
	dialer Dialer
	logger *slog.Logger
}

// NewEmailNotifier creates a notifier from the SMTP settings in cfg. With no
// host configured every Send fails with ErrNotConfigured.
func NewEmailNotifier(cfg *config.Config, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	n := &EmailNotifier{from: cfg.FromEmail, logger: logger.With("component", "notify")}
	if cfg.SMTPHost != "" {
		n.dialer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	}
	return n
}

// NewEmailNotifierWithDialer creates a notifier that sends through d
func NewEmailNotifierWithDialer(from string, d Dialer, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EmailNotifier{from: from, dialer: d, logger: logger}
}

// Configured reports whether Send can deliver
func (n *EmailNotifier) Configured() bool {
	return n.dialer != nil && n.from != ""
}

// Send delivers a plain-text email. The body is never logged.
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if !n.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.InfoContext(ctx, "email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}
