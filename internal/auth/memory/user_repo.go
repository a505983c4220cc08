// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package memory provides an in-process UserRepository for local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/internal/auth"
)

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository implements auth.UserRepository over a map.
// Records are copied on the way in and out, so callers never share state.
type UserRepository struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*auth.User
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[ulid.ULID]*auth.User)}
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id ulid.ULID, vis auth.Visibility) (*auth.User, error) {
	return r.find(ctx, func(u *auth.User) bool { return u.ID == id }, vis, "id", id.String())
}

// FindByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) FindByEmail(ctx context.Context, email string, vis auth.Visibility) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	return r.find(ctx, func(u *auth.User) bool { return u.Email == email }, vis, "email", email)
}

// FindByResetHash retrieves the user holding the given reset-token fingerprint.
func (r *UserRepository) FindByResetHash(ctx context.Context, tokenHash string, vis auth.Visibility) (*auth.User, error) {
	if tokenHash == "" {
		return nil, notFound("reset_hash", "")
	}
	return r.find(ctx, func(u *auth.User) bool { return u.PasswordResetToken == tokenHash }, vis, "reset_hash", "redacted")
}

// Save inserts or overwrites the user.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.With("operation", "save user").Wrap(err)
	}
	if err := user.ValidateProfile(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return oops.Code(auth.CodeValidation).
				With("fields", map[string]string{"email": "email is already in use"}).
				Errorf("invalid input data: email is already in use")
		}
	}
	r.users[user.ID] = user.Clone()
	return nil
}

// Len returns the number of stored users, active or not.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *UserRepository) find(
	ctx context.Context,
	match func(*auth.User) bool,
	vis auth.Visibility,
	key, value string,
) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.With("operation", "find user").Wrap(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			if !vis.Admits(u) {
				break
			}
			return u.Clone(), nil
		}
	}
	return nil, notFound(key, value)
}

func notFound(key, value string) error {
	return oops.Code(auth.CodeUserNotFound).With(key, value).Wrap(auth.ErrNotFound)
}
