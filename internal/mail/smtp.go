package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

// SMTPMailer speaks plain SMTP with STARTTLS and optional AUTH.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	timeout  time.Duration
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
		useTLS:   cfg.SMTP.TLS,
		timeout:  transportTimeout(cfg),
	}
}

// Send performs one SMTP transaction covering all recipients.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if m.host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, err := buildMIME(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	// a deadline on the socket keeps a stalled server from outliving ctx
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	} else if m.useTLS {
		return fmt.Errorf("server %s does not offer STARTTLS", m.host)
	}

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(msg.FromEmail); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return client.Quit()
}

// buildMIME assembles a multipart/alternative message, text part first
// so HTML-capable clients prefer the richer one.
func buildMIME(msg *Message) ([]byte, error) {
	boundary := "=_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.fromHeader())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	// RFC 2047 encoding; plain ASCII subjects pass through unchanged
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Message-ID: <%s@ai-news-digest>\r\n", uuid.New().String())
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	if msg.Text != "" {
		if err := writePart(&b, boundary, "text/plain", msg.Text); err != nil {
			return nil, err
		}
	}
	if err := writePart(&b, boundary, "text/html", msg.HTML); err != nil {
		return nil, err
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String()), nil
}

func writePart(b *strings.Builder, boundary, contentType, content string) error {
	fmt.Fprintf(b, "--%s\r\n", boundary)
	fmt.Fprintf(b, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(b)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("encode %s part: %w", contentType, err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("finish %s part: %w", contentType, err)
	}
	b.WriteString("\r\n")
	return nil
}
