// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/internal/config"
	"github.com/parlance-ai/parlance/internal/mail"
	"github.com/parlance-ai/parlance/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// UserStoreFactory opens the configured user store. The returned
	// readiness check runs on every readiness probe; cleanup is called on exit.
	// Default: openUserStore
	UserStoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (UserStore, error)

	// MailerFactory builds the reset mail transport.
	// Default: mail.New
	MailerFactory func(cfg mail.Config, opts ...mail.Option) (auth.Mailer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) APIServer

	// OnReady is called with the bound API address once both servers are up.
	OnReady func(apiAddr string)
}

// UserStore is an opened user repository and its lifecycle hooks.
type UserStore struct {
	Users auth.UserRepository
	Ready observability.ReadinessChecker
	Close func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
