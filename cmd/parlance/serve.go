// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/internal/auth/memory"
	"github.com/parlance-ai/parlance/internal/auth/postgres"
	"github.com/parlance-ai/parlance/internal/config"
	"github.com/parlance-ai/parlance/internal/httpapi"
	"github.com/parlance-ai/parlance/internal/logging"
	"github.com/parlance-ai/parlance/internal/mail"
	"github.com/parlance-ai/parlance/internal/observability"
	"github.com/parlance-ai/parlance/internal/store"
	"github.com/parlance-ai/parlance/pkg/errutil"
)

// autoMigrateFlag applies pending migrations before serving.
const autoMigrateFlag = "auto-migrate"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP account API and the observability server. The process
shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			autoMigrate, err := cmd.Flags().GetBool(autoMigrateFlag)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, autoMigrate, nil)
		},
	}
	cmd.Flags().Bool(autoMigrateFlag, true, "apply pending migrations on startup (postgres store)")
	return cmd
}

// runServe starts the servers and blocks until ctx ends or a server fails.
// If deps is nil, default implementations are used.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, autoMigrate bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.UserStoreFactory == nil {
		deps.UserStoreFactory = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (UserStore, error) {
			return openUserStore(ctx, cfg, autoMigrate, logger)
		}
	}
	if deps.MailerFactory == nil {
		deps.MailerFactory = mail.New
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) APIServer {
			return httpapi.NewServer(addr, handler, logger)
		}
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	logger.Info("starting parlance", "store", cfg.Store, "addr", cfg.Server.Addr)

	tp := observability.NewTracerProvider(serviceName, version)
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			errutil.LogError(logger, "failed to shut down tracer provider", err)
		}
	}()

	userStore, err := deps.UserStoreFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if userStore.Close != nil {
		defer userStore.Close()
	}

	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, userStore.Ready)
	metrics := obsServer.Metrics()

	mailer, err := deps.MailerFactory(cfg.Mail, mail.WithLogger(logger), mail.WithRecorder(metrics))
	if err != nil {
		return err
	}
	if !cfg.Mail.Enabled() {
		logger.Warn("mail host not configured, password reset mails cannot be sent")
	}

	api, err := buildAPI(cfg, userStore.Users, mailer, metrics, logger)
	if err != nil {
		return err
	}

	var obsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
		defer stopServer(cfg, logger, "observability", obsServer.Stop)
	}

	apiServer := deps.APIServerFactory(cfg.Server.Addr, api.Router(), logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return err
	}
	defer stopServer(cfg, logger, "api", apiServer.Stop)

	cmd.Printf("Parlance listening on %s\n", apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	// A nil channel never fires, so a disabled observability server is ignored.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-apiErrCh:
		return serverFailed("api", err)
	case err := <-obsErrCh:
		return serverFailed("observability", err)
	}
}

func serverFailed(name string, err error) error {
	if err == nil {
		return oops.With("server", name).Errorf("%s server stopped unexpectedly", name)
	}
	return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
}

// buildAPI wires the auth services behind the HTTP router.
func buildAPI(
	cfg *config.Config,
	users auth.UserRepository,
	mailer auth.Mailer,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (*httpapi.API, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Hasher)
	if err != nil {
		return nil, err
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
		auth.WithMailer(mailer),
		auth.WithResetTTL(cfg.Reset.TTL),
		auth.WithResetLinkBase(httpapi.ResetLinkBase(cfg.Server.PublicURL)),
	}

	tokens, err := auth.NewTokenService(cfg.Token, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(users, hasher, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewGuard(users, tokens)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(users, hasher, tokens, resets, opts...)
	if err != nil {
		return nil, err
	}

	return httpapi.New(httpapi.Deps{
		Service:       svc,
		Guard:         guard,
		Users:         users,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Production:    cfg.Server.Production,
		CookieTTL:     cfg.Token.CookieTTL,
		Logger:        logger,
		Metrics:       metrics,
	})
}

// openUserStore opens the configured backend. The postgres store waits for
// the database, optionally migrates it and pings it for readiness.
func openUserStore(ctx context.Context, cfg *config.Config, autoMigrate bool, logger *slog.Logger) (UserStore, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory user store, accounts are lost on restart")
		return UserStore{Users: memory.NewUserRepository()}, nil
	}

	if autoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return UserStore{}, err
		}
	}

	pool, err := store.Open(ctx, cfg.Database.URL, store.ConnectConfig{
		Attempts:   cfg.Database.ConnectAttempts,
		Backoff:    cfg.Database.ConnectBackoff,
		MaxBackoff: store.DefaultConnectConfig().MaxBackoff,
	}, logger)
	if err != nil {
		return UserStore{}, err
	}
	logger.Info("connected to database")

	return UserStore{
		Users: postgres.NewUserRepository(pool),
		Ready: pool.Ping,
		Close: pool.Close,
	}, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	logger.Info("database schema is up to date")
	return nil
}

func stopServer(cfg *config.Config, logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		errutil.LogError(logger, "error stopping "+name+" server", err)
	}
}
