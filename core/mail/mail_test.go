package mail

import (
	"context"
	"strings"
	"testing"

	"musinotes/config"
)

func TestNew(t *testing.T) {
	if _, ok := New(config.MailConfig{}).(LogMailer); !ok {
		t.Error("expected LogMailer without an SMTP host")
	}
	m, ok := New(config.MailConfig{Host: "smtp.example.com", Port: 587, User: "noreply@example.com"}).(*SMTPMailer)
	if !ok {
		t.Fatal("expected SMTPMailer with an SMTP host")
	}
	if m.from != "noreply@example.com" {
		t.Errorf("expected From to fall back to the user, got %q", m.from)
	}
}

func TestLogMailer(t *testing.T) {
	if err := (LogMailer{}).SendPasswordReset(context.Background(), "a@example.com", "http://x/reset?token=1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestResetBodies(t *testing.T) {
	link := `http://localhost:3000/reset-password?token=abc&x="y"`
	if !strings.Contains(resetText(link), link) {
		t.Error("expected plain body to contain the link verbatim")
	}
	html := resetHTML(link)
	if strings.Contains(html, `x="y"`) || !strings.Contains(html, "&amp;x=&#34;y&#34;") {
		t.Errorf("expected link to be escaped in HTML, got %s", html)
	}
	if !strings.Contains(html, "10 minutes") {
		t.Error("expected expiry notice")
	}
}

func TestSendRespectsCancelledContext(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "127.0.0.1", Port: 1, RatePerSecond: 0.001})
	// Drain the single burst token so the next send must wait.
	m.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.SendPasswordReset(ctx, "a@example.com", "http://x"); err == nil {
		t.Error("expected cancelled context to abort the send")
	}
}
