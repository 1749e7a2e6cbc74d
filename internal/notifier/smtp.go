package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig describes the outgoing mail account.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // defaults to Username
}

// SMTPSender sends plain-text mail. STARTTLS is used when the server offers
// it; PLAIN auth only when a username is set. Each Send opens its own
// connection, so one sender is safe for concurrent use.
type SMTPSender struct {
	cfg  SMTPConfig
	opts []mail.Option
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp host is empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is empty")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	// catches option errors at startup instead of on the first alert
	if _, err := mail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, opts: opts, now: time.Now}, nil
}

func (s *SMTPSender) Send(ctx context.Context, address, subject, body string) error {
	scheme, to, err := SplitAddress(address)
	if err != nil {
		return err
	}
	if scheme != SchemeEmail {
		return fmt.Errorf("%w: smtp cannot send to %q", ErrInvalidAddress, address)
	}

	msg, err := newMessage(s.cfg.From, to, subject, body, s.now())
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func newMessage(from, to, subject, body string, at time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidAddress, from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("%w: to %q: %v", ErrInvalidAddress, to, err)
	}
	m.Subject(subject)
	m.SetDateWithValue(at)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}
