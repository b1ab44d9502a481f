package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/spec-kit/maintenance-dispatch/internal/config"
)

// EmailSender delivers one message to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// smtpSender is a plain SMTP implementation of EmailSender.
type smtpSender struct {
	addr string
	from string
}

// NewEmailSender builds the SMTP sender, or nil when no SMTP address is
// configured, which disables email delivery.
func NewEmailSender(cfg config.NotifyConfig) EmailSender {
	if strings.TrimSpace(cfg.SMTPAddr) == "" {
		return nil
	}
	return &smtpSender{addr: cfg.SMTPAddr, from: cfg.EmailFrom}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}
