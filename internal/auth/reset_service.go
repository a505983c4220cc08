// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/pkg/errutil"
)

// PasswordResetService runs the reset-token protocol against the user record.
// A user has at most one pending reset; requesting again supersedes it.
type PasswordResetService struct {
	users  UserRepository
	hasher PasswordHasher
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
// WithResetTTL, WithClock and WithLogger apply.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher, opts ...Option) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	o := applyOptions(opts)
	return &PasswordResetService{
		users:  users,
		hasher: hasher,
		ttl:    o.resetTTL,
		now:    o.now,
		logger: o.logger,
	}, nil
}

// TTL returns how long a requested reset token stays valid.
func (s *PasswordResetService) TTL() time.Duration {
	return s.ttl
}

// RequestReset stores a fresh reset fingerprint for the active user with the
// given email and returns the plaintext token for out-of-band delivery.
// An unknown email fails with CodeUserNotFound without echoing the address.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, *User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", nil, oops.Code(CodeValidation).Errorf("please provide your email address")
	}

	user, err := s.users.FindByEmail(ctx, email, ActiveOnly)
	if err != nil {
		if IsNotFound(err) {
			return "", nil, oops.Code(CodeUserNotFound).Errorf("there is no user with that email address")
		}
		return "", nil, storeError("find user by email", err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	user.SetResetToken(hash, now.Add(s.ttl), now)
	if err := s.users.Save(ctx, user); err != nil {
		return "", nil, storeError("save reset token", err)
	}

	return token, user, nil
}

// CancelReset clears a pending reset. It is the compensating step when the
// reset link could not be delivered.
func (s *PasswordResetService) CancelReset(ctx context.Context, user *User) error {
	if user == nil {
		return oops.Code(CodeInternal).Errorf("user cannot be nil")
	}
	user.ClearResetToken(s.now())
	if err := s.users.Save(ctx, user); err != nil {
		return storeError("clear reset token", err)
	}
	return nil
}

// ConsumeReset sets a new password for the user holding the reset token.
// Unknown, already used and expired tokens all fail with the same
// CodeResetTokenInvalid error. On success the reset fields are cleared and
// every session token issued before now stops authenticating.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, password, confirm string) (*User, error) {
	if token == "" {
		return nil, invalidResetToken()
	}

	user, err := s.users.FindByResetHash(ctx, HashResetToken(token), ActiveOnly)
	if err != nil {
		if IsNotFound(err) {
			return nil, invalidResetToken()
		}
		return nil, storeError("find user by reset token", err)
	}

	now := s.now()
	if user.ResetExpired(now) {
		// Drop the dead fingerprint so it cannot be looked up again.
		user.ClearResetToken(now)
		if err := s.users.Save(ctx, user); err != nil {
			errutil.LogError(s.logger, "failed to clear expired reset token", storeError("clear reset token", err))
		}
		return nil, invalidResetToken()
	}

	if err := ValidatePasswordPair(password, confirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user.ChangePassword(hash, now)
	user.ClearResetToken(now)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, storeError("save new password", err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return user, nil
}
