package mailer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/pkg/config"
)

// Message is a single plain-text email addressed to one or more recipients.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipients is returned when a message has nobody to deliver to.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// SMTPSender delivers mail through an SMTP relay with optional STARTTLS and PLAIN auth.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewSMTPSender builds a sender from configuration.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.Sender,
		timeout:  30 * time.Second,
	}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect smtp: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}
	if s.username != "" && s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	if _, err := w.Write([]byte(BuildMessage(s.from, msg))); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

// BuildMessage renders RFC 5322 headers and body. Recipients go to Bcc so
// members of a bulk notice do not see each other's addresses.
func BuildMessage(from string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	if len(msg.To) == 1 {
		fmt.Fprintf(&b, "To: %s\r\n", msg.To[0])
	} else {
		fmt.Fprintf(&b, "To: %s\r\n", from)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mimeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.String()
}

func mimeHeader(value string) string {
	for _, r := range value {
		if r > 127 {
			return fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(value)))
		}
	}
	return value
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a Sender that writes every message to the logger.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	s.logger.Info("mail not sent, smtp disabled", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// New picks the SMTP sender when a host is configured and the log sender otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}
