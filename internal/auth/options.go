// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Metrics records the outcome of auth operations.
type Metrics interface {
	RecordOperation(operation, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, string) {}

type unconfiguredMailer struct{}

func (unconfiguredMailer) Send(context.Context, string, string, string) error {
	return oops.Code("MAIL_DISABLED").Errorf("no mailer configured")
}

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	metrics   Metrics
	mailer    Mailer
	resetTTL  time.Duration
	resetLink string
}

func defaultOptions() options {
	return options{
		logger:    slog.Default(),
		now:       time.Now,
		metrics:   nopMetrics{},
		mailer:    unconfiguredMailer{},
		resetTTL:  DefaultResetTTL,
		resetLink: "http://localhost:8080/api/v1/users/resetPassword/",
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures the services in this package. Options a service
// does not use are ignored by it.
type Option func(*options)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the wall clock. Tests use it to step past expiries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics sets the operation outcome recorder.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithMailer sets the mailer used to deliver reset links.
func WithMailer(m Mailer) Option {
	return func(o *options) {
		if m != nil {
			o.mailer = m
		}
	}
}

// WithResetTTL sets how long a reset token stays valid. Non-positive values are ignored.
func WithResetTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.resetTTL = ttl
		}
	}
}

// WithResetLinkBase sets the URL prefix the plaintext reset token is appended to.
func WithResetLinkBase(base string) Option {
	return func(o *options) {
		if base != "" {
			o.resetLink = base
		}
	}
}
