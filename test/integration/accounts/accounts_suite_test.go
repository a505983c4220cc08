// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

//go:build integration

package accounts_test

import (
	"context"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parlance-ai/parlance/internal/auth"
	authpg "github.com/parlance-ai/parlance/internal/auth/postgres"
	"github.com/parlance-ai/parlance/internal/httpapi"
	"github.com/parlance-ai/parlance/internal/observability"
	"github.com/parlance-ai/parlance/internal/store"
)

const secret = "integration-secret-of-at-least-32-bytes"

func TestAccounts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Accounts Integration Suite")
}

// outbox records reset mails instead of sending them.
type outbox struct {
	mu     sync.Mutex
	bodies map[string]string
}

var resetLink = regexp.MustCompile(`resetPassword/([0-9a-f]{64})`)

func (o *outbox) Send(_ context.Context, to, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies[to] = body
	return nil
}

// resetToken returns the token from the last mail sent to email.
func (o *outbox) resetToken(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	match := resetLink.FindStringSubmatch(o.bodies[email])
	Expect(match).To(HaveLen(2), "no reset mail for %s", email)
	return match[1]
}

type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	users     *authpg.UserRepository
	mail      *outbox
	metrics   *observability.Metrics
	server    *httptest.Server
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("parlance_test"),
		postgres.WithUsername("parlance"),
		postgres.WithPassword("parlance"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	_ = migrator.Close()

	pool, err := store.Open(ctx, connStr, store.DefaultConnectConfig(), nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	e := &testEnv{
		ctx:       ctx,
		container: container,
		pool:      pool,
		users:     authpg.NewUserRepository(pool),
		mail:      &outbox{bodies: map[string]string{}},
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	}

	api, err := e.buildAPI()
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.server = httptest.NewServer(api.Router())
	return e, nil
}

func (e *testEnv) buildAPI() (*httpapi.API, error) {
	hasher, err := auth.NewArgon2idHasher(auth.HasherConfig{Time: 1, MemoryKiB: 64, Threads: 1})
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithMailer(e.mail),
		auth.WithMetrics(e.metrics),
		auth.WithResetLinkBase(httpapi.ResetLinkBase("https://parlance.test")),
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: secret, TTL: auth.DefaultTokenTTL}, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(e.users, hasher, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewGuard(e.users, tokens)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(e.users, hasher, tokens, resets, opts...)
	if err != nil {
		return nil, err
	}
	return httpapi.New(httpapi.Deps{
		Service:   svc,
		Guard:     guard,
		Users:     e.users,
		CookieTTL: auth.DefaultTokenTTL,
		Metrics:   e.metrics,
	})
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}
