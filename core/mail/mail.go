// Package mail delivers account emails.
package mail

import (
	"context"
	"fmt"
	"html"

	"musinotes/config"
	"musinotes/logger"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// Mailer sends the password reset message.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// New returns an SMTP mailer when a host is configured and a log-only mailer otherwise.
func New(cfg config.MailConfig) Mailer {
	if !cfg.Enabled() {
		logger.Warn("EMAIL_HOST not set, password reset links will only be logged")
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through one SMTP relay, throttled to protect the relay quota.
type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	limiter *rate.Limiter
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPMailer{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// SendPasswordReset waits for a send slot, then delivers the reset link to the recipient.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Password Reset - MusiNotes")
	msg.SetBody("text/plain", resetText(resetURL))
	msg.AddAlternative("text/html", resetHTML(resetURL))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send reset mail: %w", err)
	}
	return nil
}

// LogMailer writes the message to the log instead of sending it. Development only.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, to, resetURL string) error {
	logger.Info("Password reset mail (not sent, no SMTP configured)", logger.String("to", to))
	logger.Debug("Password reset link", logger.String("url", resetURL))
	return nil
}

func resetText(resetURL string) string {
	return "You requested a password reset for your MusiNotes account.\n\n" +
		"Open the link below to reset your password:\n" + resetURL + "\n\n" +
		"This link will expire in 10 minutes.\n" +
		"If you didn't request this, please ignore this email.\n"
}

func resetHTML(resetURL string) string {
	u := html.EscapeString(resetURL)
	return `<h2>Password Reset Request</h2>
<p>You requested a password reset for your MusiNotes account.</p>
<p>Click the link below to reset your password:</p>
<a href="` + u + `">Reset Password</a>
<p>This link will expire in 10 minutes.</p>
<p>If you didn't request this, please ignore this email.</p>`
}
