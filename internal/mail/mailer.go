// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package mail delivers account mail over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/textproto"
	"regexp"
	"strconv"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"

	"github.com/parlance-ai/parlance/internal/auth"
)

// Error codes.
const (
	CodeSendFailed = "MAIL_SEND_FAILED"
	CodeDisabled   = "MAIL_DISABLED"
	CodeConfig     = "MAIL_CONFIG_INVALID"
)

// Delivery outcomes reported to DeliveryRecorder.
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
)

// Config configures the SMTP mailer. An empty Host disables mail.
type Config struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	Retries  uint64        `koanf:"retries"`
	Backoff  time.Duration `koanf:"backoff"`
}

// DefaultConfig returns mail settings with delivery disabled.
func DefaultConfig() Config {
	return Config{
		Port:    587,
		From:    "Parlance <no-reply@parlance.local>",
		Retries: 3,
		Backoff: 500 * time.Millisecond,
	}
}

// Enabled reports whether an SMTP host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// Validate checks the settings needed to send.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code(CodeConfig).With("port", c.Port).Errorf("mail port must be between 1 and 65535")
	}
	if c.From == "" {
		return oops.Code(CodeConfig).Errorf("mail from address is required")
	}
	if c.Backoff <= 0 {
		return oops.Code(CodeConfig).With("backoff", c.Backoff).Errorf("mail backoff must be positive")
	}
	return nil
}

// DeliveryRecorder counts delivery outcomes.
type DeliveryRecorder interface {
	RecordMailDelivery(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMailDelivery(string) {}

// sender is the part of *gomail.Dialer the mailer uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Option configures a mailer.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder DeliveryRecorder
	sender   sender
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the delivery outcome recorder.
func WithRecorder(r DeliveryRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func withSender(s sender) Option {
	return func(o *options) { o.sender = s }
}

// Compile-time interface checks.
var (
	_ auth.Mailer = (*SMTPMailer)(nil)
	_ auth.Mailer = (*Disabled)(nil)
)

// SMTPMailer sends plain-text mail through an SMTP relay, retrying
// transient failures with exponential backoff.
type SMTPMailer struct {
	sender   sender
	from     string
	retries  uint64
	backoff  time.Duration
	logger   *slog.Logger
	recorder DeliveryRecorder
}

// NewSMTPMailer creates an SMTPMailer. cfg must be enabled and valid.
func NewSMTPMailer(cfg Config, opts ...Option) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, oops.Code(CodeConfig).Errorf("mail host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sender == nil {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		o.sender = d
	}

	return &SMTPMailer{
		sender:   o.sender,
		from:     cfg.From,
		retries:  cfg.Retries,
		backoff:  cfg.Backoff,
		logger:   o.logger,
		recorder: o.recorder,
	}, nil
}

// Send delivers one message. Permanent SMTP rejections (5xx) are not retried.
// The body is never logged; it may carry a reset link.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	backoff := retry.WithMaxRetries(m.retries, retry.WithCappedDuration(10*time.Second, retry.NewExponential(m.backoff)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.sender.DialAndSend(msg)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		m.logger.WarnContext(ctx, "mail send attempt failed", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		m.recorder.RecordMailDelivery(OutcomeFailed)
		return oops.Code(CodeSendFailed).
			With("attempts", attempt).
			With("subject", subject).
			Wrap(err)
	}

	m.recorder.RecordMailDelivery(OutcomeSent)
	m.logger.InfoContext(ctx, "mail sent", "subject", subject, "attempts", attempt)
	return nil
}

// gomail keeps dial and auth errors as *textproto.Error but flattens errors
// from the send itself into "gomail: could not send email N: <reply>".
var flattenedReply = regexp.MustCompile(`^gomail: could not send email \d+: (\d{3}) `)

// permanent reports whether the relay rejected the message outright.
func permanent(err error) bool {
	code, ok := replyCode(err)
	return ok && code >= 500 && code < 600
}

func replyCode(err error) (int, bool) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, true
	}
	m := flattenedReply.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, convErr := strconv.Atoi(m[1])
	return code, convErr == nil
}

// Disabled is the mailer used when no SMTP host is configured. Every send fails,
// so callers surface a delivery error instead of silently dropping mail.
type Disabled struct {
	logger   *slog.Logger
	recorder DeliveryRecorder
}

// NewDisabled creates a Disabled mailer.
func NewDisabled(opts ...Option) *Disabled {
	o := options{logger: slog.Default(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Disabled{logger: o.logger, recorder: o.recorder}
}

// Send always fails with CodeDisabled.
func (d *Disabled) Send(ctx context.Context, _, subject, _ string) error {
	d.recorder.RecordMailDelivery(OutcomeDisabled)
	d.logger.WarnContext(ctx, "mail delivery is disabled", "subject", subject)
	return oops.Code(CodeDisabled).Errorf("mail delivery is not configured")
}

// New returns an SMTPMailer when cfg names a host and a Disabled mailer otherwise.
func New(cfg Config, opts ...Option) (auth.Mailer, error) {
	if !cfg.Enabled() {
		return NewDisabled(opts...), nil
	}
	return NewSMTPMailer(cfg, opts...)
}
