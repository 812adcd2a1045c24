package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"content_review/internal/config"
)

// Sink delivers rendered messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP delivers messages through an SMTP relay.
type SMTP struct {
	host string
	opts []mail.Option
}

// NewSMTP creates an SMTP sink from configuration.
func NewSMTP(cfg config.SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, &config.ConfigurationError{Field: "SMTP_HOST", Reason: "is required to send email"}
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}
	switch cfg.TLS {
	case config.TLSMandatory:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case config.TLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	// Fail on bad options now rather than on the first send.
	if _, err := mail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTP{host: cfg.Host, opts: opts}, nil
}

// Send delivers one message. Each call uses its own connection, so Send may
// be called from several goroutines.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("set from %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	client, err := mail.NewClient(s.host, s.opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}
