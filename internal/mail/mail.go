// Package mail delivers rendered digests. Three interchangeable
// transports sit behind one interface: an HTTP API (Resend-compatible),
// plain SMTP, and AWS SES.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

const defaultTimeout = 30 * time.Second

// Message is one outbound email. HTML is required, Text optional.
type Message struct {
	FromEmail string
	FromName  string
	To        []string
	Subject   string
	HTML      string
	Text      string
}

// fromHeader renders the RFC 5322 originator, with display name when set.
func (m *Message) fromHeader() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
}

func (m *Message) validate() error {
	if m.FromEmail == "" {
		return fmt.Errorf("message has no from address")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if m.Subject == "" {
		return fmt.Errorf("message has no subject")
	}
	return nil
}

// Mailer sends a single message. Implementations enforce their own
// transport timeout; a failed send never panics and never retries.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// New selects the transport named by the configuration. Credential
// problems surface at Send time, not here, so a half-configured engine
// can still run newsletters that have no recipients.
func New(ctx context.Context, cfg config.EmailConfig) (Mailer, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "api":
		return NewAPIMailer(cfg), nil
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "ses":
		return NewSESMailer(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}
}

// bodySnippet bounds transport error text carried into logs.
func bodySnippet(body []byte) string {
	const max = 500
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}

func transportTimeout(cfg config.EmailConfig) time.Duration {
	if t := cfg.Timeout(); t > 0 {
		return t
	}
	return defaultTimeout
}
