// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/internal/auth/mocks"
	"github.com/parlance-ai/parlance/pkg/errutil"
)

func TestNewPasswordResetService_RequiresDependencies(t *testing.T) {
	_, err := auth.NewPasswordResetService(nil, newTestHasher(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user repository is required")

	_, err = auth.NewPasswordResetService(mocks.NewMockUserRepository(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password hasher is required")
}

func TestPasswordResetService_TTL(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, auth.DefaultResetTTL, env.resets.TTL())

	svc, err := auth.NewPasswordResetService(env.users, env.hasher, auth.WithResetTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.TTL())
}

func TestPasswordResetService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("stores only the fingerprint", func(t *testing.T) {
		env := newTestEnv(t)
		created, _ := env.signup(t, "ada@example.com")

		token, user, err := env.resets.RequestReset(ctx, " ADA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.Len(t, token, 64)

		stored, err := env.users.FindByID(ctx, created.ID, auth.ActiveOnly)
		require.NoError(t, err)
		assert.Equal(t, auth.HashResetToken(token), stored.PasswordResetToken)
		assert.NotEqual(t, token, stored.PasswordResetToken)
		require.NotNil(t, stored.PasswordResetExpires)
		assert.Equal(t, env.clock.Now().Add(auth.DefaultResetTTL), *stored.PasswordResetExpires)
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.resets.RequestReset(ctx, "ghost@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
		assert.NotContains(t, err.Error(), "ghost@example.com")
	})

	t.Run("empty email", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.resets.RequestReset(ctx, "   ")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("new request supersedes the previous token", func(t *testing.T) {
		env := newTestEnv(t)
		env.signup(t, "ada@example.com")

		first, _, err := env.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)
		second, _, err := env.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotEqual(t, first, second)

		_, err = env.resets.ConsumeReset(ctx, first, "brand-new-pass", "brand-new-pass")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

		_, err = env.resets.ConsumeReset(ctx, second, "brand-new-pass", "brand-new-pass")
		require.NoError(t, err)
	})
}

func TestPasswordResetService_ConsumeReset(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, string) {
		t.Helper()
		env := newTestEnv(t)
		env.signup(t, "ada@example.com")
		token, _, err := env.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)
		return env, token
	}

	t.Run("sets password and clears token", func(t *testing.T) {
		env, token := setup(t)
		env.clock.Advance(5 * time.Minute)

		user, err := env.resets.ConsumeReset(ctx, token, "brand-new-pass", "brand-new-pass")
		require.NoError(t, err)
		assert.Empty(t, user.PasswordResetToken)
		assert.Nil(t, user.PasswordResetExpires)
		require.NotNil(t, user.PasswordChangedAt)
		assert.Equal(t, env.clock.Now().Add(-auth.PasswordChangeSkew), *user.PasswordChangedAt)

		ok, err := env.hasher.Verify("brand-new-pass", user.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("token is single use", func(t *testing.T) {
		env, token := setup(t)
		_, err := env.resets.ConsumeReset(ctx, token, "brand-new-pass", "brand-new-pass")
		require.NoError(t, err)

		_, err = env.resets.ConsumeReset(ctx, token, "another-pass", "another-pass")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})

	t.Run("expires at the TTL boundary", func(t *testing.T) {
		env, token := setup(t)
		env.clock.Advance(auth.DefaultResetTTL)

		_, err := env.resets.ConsumeReset(ctx, token, "brand-new-pass", "brand-new-pass")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

		stored, err := env.users.FindByEmail(ctx, "ada@example.com", auth.ActiveOnly)
		require.NoError(t, err)
		assert.Empty(t, stored.PasswordResetToken, "expired fingerprint is dropped")
		assert.Nil(t, stored.PasswordChangedAt, "password untouched")
	})

	t.Run("unknown and empty tokens look the same", func(t *testing.T) {
		env, _ := setup(t)
		_, errUnknown := env.resets.ConsumeReset(ctx, "deadbeef", "brand-new-pass", "brand-new-pass")
		_, errEmpty := env.resets.ConsumeReset(ctx, "", "brand-new-pass", "brand-new-pass")
		require.Error(t, errUnknown)
		require.Error(t, errEmpty)
		assert.Equal(t, errUnknown.Error(), errEmpty.Error())
		errutil.AssertErrorCode(t, errUnknown, auth.CodeResetTokenInvalid)
	})

	t.Run("password mismatch keeps the token pending", func(t *testing.T) {
		env, token := setup(t)
		_, err := env.resets.ConsumeReset(ctx, token, "brand-new-pass", "other-new-pass")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)

		_, err = env.resets.ConsumeReset(ctx, token, "brand-new-pass", "brand-new-pass")
		require.NoError(t, err)
	})

	t.Run("inactive user cannot reset", func(t *testing.T) {
		env, token := setup(t)
		user, err := env.users.FindByEmail(ctx, "ada@example.com", auth.ActiveOnly)
		require.NoError(t, err)
		user.Active = false
		require.NoError(t, env.users.Save(ctx, user))

		_, err = env.resets.ConsumeReset(ctx, token, "brand-new-pass", "brand-new-pass")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})
}

func TestPasswordResetService_StoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("lookup failure is a store error", func(t *testing.T) {
		repo := mocks.NewMockUserRepository(t)
		repo.On("FindByResetHash", mock.Anything, auth.HashResetToken("tok"), auth.ActiveOnly).Return(nil, boom)

		svc, err := auth.NewPasswordResetService(repo, newTestHasher(t))
		require.NoError(t, err)

		_, err = svc.ConsumeReset(ctx, "tok", "brand-new-pass", "brand-new-pass")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("save failure surfaces from request", func(t *testing.T) {
		user, err := auth.NewUser(signupInput("ada@example.com"), "hash", epoch)
		require.NoError(t, err)

		repo := mocks.NewMockUserRepository(t)
		repo.On("FindByEmail", mock.Anything, "ada@example.com", auth.ActiveOnly).Return(user, nil)
		repo.On("Save", mock.Anything, mock.AnythingOfType("*auth.User")).Return(boom)

		svc, err := auth.NewPasswordResetService(repo, newTestHasher(t))
		require.NoError(t, err)

		_, _, err = svc.RequestReset(ctx, "ada@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeStoreFailed)
		errutil.AssertErrorContext(t, err, "operation", "save reset token")
	})

	t.Run("expired token is rejected even if clearing fails", func(t *testing.T) {
		clock := newTestClock()
		user, err := auth.NewUser(signupInput("ada@example.com"), "hash", clock.Now())
		require.NoError(t, err)
		user.SetResetToken(auth.HashResetToken("tok"), clock.Now().Add(-time.Second), clock.Now())

		repo := mocks.NewMockUserRepository(t)
		repo.On("FindByResetHash", mock.Anything, auth.HashResetToken("tok"), auth.ActiveOnly).Return(user, nil)
		repo.On("Save", mock.Anything, mock.Anything).Return(boom)

		svc, err := auth.NewPasswordResetService(repo, newTestHasher(t), auth.WithClock(clock.Now))
		require.NoError(t, err)

		_, err = svc.ConsumeReset(ctx, "tok", "brand-new-pass", "brand-new-pass")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})
}
