// Package feedback forwards user feedback to the operators by mail.
package feedback

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"mensabot/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To lists the operator addresses; an empty list leaves feedback
	// forwarding unconfigured.
	To []string
}

// Configured reports whether enough is set to actually send mail.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != "" && len(c.To) > 0
}

// Mailer sends feedback messages over SMTP.
type Mailer struct {
	cfg Config
	log logx.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns nil when the config is incomplete, which degrades the
// /feedback command to an "unavailable" reply instead of failing.
func NewMailer(cfg Config, log logx.Logger) *Mailer {
	if !cfg.Configured() {
		return nil
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

func (m *Mailer) Forward(ctx context.Context, chatID int64, text string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: mensabot feedback from chat %d\r\n", chatID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("feedback mail: %w", err)
	}
	m.log.Info("feedback forwarded", logx.Int64("chat_id", chatID))
	return nil
}
