package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// EmailOptions carry SMTP settings.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
	Timeout  time.Duration
}

// EmailNotifier sends each notification to the rule's recipient over SMTP.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	n := &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
	n.send = n.dialAndSend
	return n
}

// Notify builds a plain-text message and sends it.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if note.Recipient == "" {
		return errors.New("email recipient is empty")
	}

	msg, err := n.buildMessage(note)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Str("rule", note.RuleName).Str("to", note.Recipient).Msg("alert email sent")
	return nil
}

func (n *EmailNotifier) buildMessage(note Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.opts.From); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(note.Recipient); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(renderSubject(note))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, renderMessage(note))
	return msg, nil
}

func (n *EmailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	options := []mail.Option{
		mail.WithPort(n.opts.Port),
		mail.WithTimeout(n.opts.Timeout),
	}
	switch {
	case n.opts.Port == 465:
		options = append(options, mail.WithSSL())
	case n.opts.StartTLS:
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}
	if n.opts.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.opts.Username),
			mail.WithPassword(n.opts.Password),
		)
	}

	client, err := mail.NewClient(n.opts.Host, options...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

var _ Notifier = (*EmailNotifier)(nil)
