// Package notify sends email when the remote session needs a person to sign in again.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/phx/internal/shared"
)

// SendFunc delivers a composed message. It has the signature of [smtp.SendMail].
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Notifier mails authentication-expiry alerts.
type Notifier struct {
	cfg    shared.NotificationConfig
	send   SendFunc
	now    func() time.Time
	logger *log.Logger
}

// Option configures a [Notifier].
type Option func(*Notifier)

// WithSender replaces the SMTP transport.
func WithSender(fn SendFunc) Option {
	return func(n *Notifier) { n.send = fn }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a Notifier. Without a host and recipient every call is a no-op.
func New(cfg shared.NotificationConfig, opts ...Option) *Notifier {
	n := &Notifier{cfg: cfg, now: time.Now, logger: shared.NewLogger(io.Discard)}
	if cfg.SMTPNoTLS {
		n.send = sendWithoutTLS
	} else {
		n.send = smtp.SendMail
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether alerts will actually be sent.
func (n *Notifier) Enabled() bool { return n.cfg.Enabled() }

// AuthExpired tells the recipient that the session for username needs two-step verification.
func (n *Notifier) AuthExpired(ctx context.Context, username string) error {
	if !n.Enabled() {
		n.logger.Debug("notifications disabled, not sending auth alert")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := "phx: two-step verification required"
	body := fmt.Sprintf("Two-step verification is required for %s.\r\n\r\n"+
		"Scheduled syncs will fail until you sign in again. Run:\r\n\r\n"+
		"    phx auth --username %s\r\n", username, username)

	msg := Compose(n.from(), n.cfg.To, subject, body, n.now())
	if err := n.send(n.addr(), n.auth(), n.from(), []string{n.cfg.To}, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	n.logger.Info("sent auth expiry notification", "to", n.cfg.To)
	return nil
}

func (n *Notifier) addr() string {
	port := n.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	return net.JoinHostPort(n.cfg.SMTPHost, strconv.Itoa(port))
}

func (n *Notifier) from() string {
	switch {
	case n.cfg.From != "":
		return n.cfg.From
	case n.cfg.SMTPUsername != "":
		return n.cfg.SMTPUsername
	default:
		return n.cfg.To
	}
}

func (n *Notifier) auth() smtp.Auth {
	if n.cfg.SMTPUsername == "" {
		return nil
	}
	return smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)
}

// Compose builds an RFC 5322 plain-text message with CRLF line endings.
func Compose(from, to, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

// sendWithoutTLS is smtp.SendMail minus the STARTTLS upgrade, for relays on a trusted network.
func sendWithoutTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
