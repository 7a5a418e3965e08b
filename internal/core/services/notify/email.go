package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/mailgun/mailgun-go/v4"
)

// mailSender delivers one already formatted message.
type mailSender interface {
	send(ctx context.Context, subject, body string) error
}

type EmailChannel struct {
	sender mailSender
}

// NewEmailChannel picks the SMTP or Mailgun transport from cfg.Provider.
func NewEmailChannel(cfg config.EmailChannelConfig) (*EmailChannel, error) {
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("email: from and to are required")
	}

	switch cfg.Provider {
	case "", "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("email: smtp_host is required")
		}
		return &EmailChannel{sender: &smtpSender{cfg: cfg}}, nil
	case "mailgun":
		if cfg.MailgunKey == "" || cfg.Domain == "" {
			return nil, errors.New("email: mailgun_key and domain are required")
		}
		mg := mailgun.NewMailgun(cfg.Domain, cfg.MailgunKey)
		if cfg.MailgunAPIBase != "" {
			mg.SetAPIBase(cfg.MailgunAPIBase)
		}
		return &EmailChannel{sender: &mailgunSender{mg: mg, from: cfg.From, to: cfg.To}}, nil
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert domain.Alert) error {
	return c.sender.send(ctx, subject(alert), plainText(alert))
}

type smtpSender struct {
	cfg config.EmailChannelConfig
}

func (s *smtpSender) send(_ context.Context, subject, body string) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, strings.Join(s.cfg.To, ", "), subject, body,
	))
	addr := s.cfg.SMTPHost + ":" + strconv.Itoa(s.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, s.cfg.From, s.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

type mailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
	to   []string
}

func (s *mailgunSender) send(ctx context.Context, subject, body string) error {
	message := s.mg.NewMessage(s.from, subject, body)
	for _, to := range s.to {
		if err := message.AddRecipient(to); err != nil {
			return fmt.Errorf("mailgun: %w", err)
		}
	}
	if _, _, err := s.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}
