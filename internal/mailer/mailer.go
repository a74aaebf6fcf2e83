package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qzplatform/qz-service/internal/config"
)

// Message is one outgoing email
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"htmlBody"`
	TextBody string `json:"textBody,omitempty"`
}

// Mailer delivers a single message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From header of outgoing mail
type Sender struct {
	Name  string
	Email string
}

func (s Sender) String() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// NewTransport builds the synchronous transport named by cfg.Transport
func NewTransport(cfg config.MailConfig, logger *slog.Logger) (Mailer, error) {
	from := Sender{Name: cfg.FromName, Email: cfg.FromEmail}

	switch cfg.Transport {
	case "smtp":
		return NewSMTPMailer(cfg.SMTP, from), nil
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("MAIL.SENDGRID_API_KEY is required for the sendgrid transport")
		}
		return NewSendgridMailer(cfg.SendgridAPIKey, from), nil
	case "log", "":
		return NewLogMailer(logger), nil
	}
	return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
}

// LogMailer only logs messages; used in development
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "Email not sent (log transport)", "to", msg.To, "subject", msg.Subject)
	return nil
}
