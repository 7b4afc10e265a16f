// Package mailer delivers emails produced by SEND_EMAIL actions.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

var ErrMissingRecipient = errors.New("email has no recipient")

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Addr        string
	Username    string
	Password    string
	DefaultFrom string
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	config   SMTPConfig
	logger   *slog.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(logger *slog.Logger, config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		config:   config,
		logger:   logger.With("module", "smtp_mailer"),
		sendMail: smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrMissingRecipient
	}

	if msg.From == "" {
		msg.From = m.config.DefaultFrom
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth

	if m.config.Username != "" {
		host, _, err := net.SplitHostPort(m.config.Addr)
		if err != nil {
			return fmt.Errorf("invalid smtp address %q: %w", m.config.Addr, err)
		}

		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, host)
	}

	err := m.sendMail(m.config.Addr, auth, msg.From, []string{msg.To}, Encode(msg, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}

	m.logger.DebugContext(ctx, "Email sent", "to", msg.To, "subject", msg.Subject)

	return nil
}

// Encode renders msg as an RFC 5322 message.
func Encode(msg Message, date time.Time) []byte {
	var b strings.Builder

	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + headerValue(msg.Subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	return []byte(b.String())
}

func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogMailer only logs messages. It is used when no SMTP server is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "log_mailer")}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrMissingRecipient
	}

	m.logger.InfoContext(ctx, "Email not delivered, no SMTP server configured", "to", msg.To, "subject", msg.Subject)

	return nil
}
