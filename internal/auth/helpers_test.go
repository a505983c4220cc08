// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/internal/auth/memory"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

// testClock is a manually advanced clock shared by every service in a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestHasher returns a hasher with the cheapest valid parameters.
func newTestHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(auth.HasherConfig{Time: 1, MemoryKiB: 64, Threads: 1})
	require.NoError(t, err)
	return h
}

func newTestTokens(t *testing.T, clock *testClock) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: testSecret,
		TTL:    auth.DefaultTokenTTL,
	}, auth.WithClock(clock.Now))
	require.NoError(t, err)
	return tokens
}

type sentMail struct {
	To, Subject, Body string
}

// recordingMailer captures messages instead of delivering them.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// testEnv wires the auth services over an in-memory repository.
type testEnv struct {
	clock  *testClock
	users  *memory.UserRepository
	hasher *auth.Argon2idHasher
	tokens *auth.TokenService
	resets *auth.PasswordResetService
	guard  *auth.Guard
	mailer *recordingMailer
	svc    *auth.Service
}

func newTestEnv(t *testing.T, opts ...auth.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:  newTestClock(),
		users:  memory.NewUserRepository(),
		hasher: newTestHasher(t),
		mailer: &recordingMailer{},
	}
	env.tokens = newTestTokens(t, env.clock)

	base := []auth.Option{
		auth.WithClock(env.clock.Now),
		auth.WithMailer(env.mailer),
		auth.WithResetLinkBase("https://parlance.test/api/v1/users/resetPassword/"),
	}
	opts = append(base, opts...)

	var err error
	env.resets, err = auth.NewPasswordResetService(env.users, env.hasher, opts...)
	require.NoError(t, err)
	env.guard, err = auth.NewGuard(env.users, env.tokens)
	require.NoError(t, err)
	env.svc, err = auth.NewService(env.users, env.hasher, env.tokens, env.resets, opts...)
	require.NoError(t, err)
	return env
}

func signupInput(email string) auth.SignupInput {
	return auth.SignupInput{
		Name:            "Ada Lovelace",
		Email:           email,
		Password:        "correct-horse",
		PasswordConfirm: "correct-horse",
	}
}

// signup creates a user through the service and returns it with its session token.
func (e *testEnv) signup(t *testing.T, email string) (*auth.User, string) {
	t.Helper()
	user, token, err := e.svc.Signup(context.Background(), signupInput(email))
	require.NoError(t, err)
	return user, token
}
