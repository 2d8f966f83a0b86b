package client

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/barterhub/backend/internal/config"
)

// SMTPMailer sends the transactional confirmation mail. Delivery is plain
// SMTP with optional auth; templating stays inline because there is a
// single message kind.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) SendConfirmationMail(ctx context.Context, toEmail, toName, tokenStr string) error {
	link := fmt.Sprintf("%s/api/v1/mail-confirm/confirm?token=%s",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.QueryEscape(tokenStr))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", toEmail)
	fmt.Fprintf(&msg, "Subject: Confirm your email\r\n")
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&msg, "Hi %s,\r\n\r\nConfirm your email address by opening the link below:\r\n\r\n%s\r\n\r\nThe link is valid for 24 hours.\r\n", toName, link)

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{toEmail}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send confirmation mail: %w", err)
	}

	m.logger.Info("confirmation mail sent", zap.String("to", toEmail))
	return nil
}

// LogMailer replaces SMTP in development: it only logs the link.
type LogMailer struct {
	BaseURL string
	Logger  *zap.Logger
}

func (m *LogMailer) SendConfirmationMail(ctx context.Context, toEmail, toName, tokenStr string) error {
	m.Logger.Info("confirmation mail (log only)",
		zap.String("to", toEmail),
		zap.String("token", tokenStr),
	)
	return nil
}
