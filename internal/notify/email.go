package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // optional - some servers allow unauthenticated relay
	Password string
	From     string
	FromName string
}

// EmailNotifier sends transactional order emails over SMTP using go-mail.
type EmailNotifier struct {
	config SMTPConfig
	logger *zap.Logger
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates an SMTP-backed notifier.
func NewEmailNotifier(config SMTPConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailNotifier{config: config, logger: logger}
}

// Notify sends the email for an event. Events without a customer email
// address are skipped silently: COD checkouts do not require one.
func (s *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if event.Email == "" {
		return nil
	}

	subject, body := renderEmail(event)
	if subject == "" {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.config.FromName, s.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(event.Email); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	client, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("order email sent",
		zap.String("kind", event.Kind),
		zap.String("order_id", event.OrderID),
	)
	return nil
}
