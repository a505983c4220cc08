// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// Guard resolves a bearer token to the active user it was issued for.
type Guard struct {
	users  UserRepository
	tokens *TokenService
}

// NewGuard creates a new Guard.
func NewGuard(users UserRepository, tokens *TokenService) (*Guard, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	return &Guard{users: users, tokens: tokens}, nil
}

// BearerToken extracts the token from an Authorization header value.
// The scheme is case-insensitive; anything other than "Bearer <token>" is rejected.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", unauthenticated(ReasonMissingToken, "you are not logged in, please log in to get access")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", unauthenticated(ReasonMalformedHeader, "invalid authorization header")
	}
	return parts[1], nil
}

// Authenticate resolves an Authorization header value to a user.
func (g *Guard) Authenticate(ctx context.Context, header string) (*User, *Claims, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, nil, err
	}
	return g.AuthenticateToken(ctx, token)
}

// AuthenticateToken verifies a raw token and loads its user. It fails with
// CodeUnauthenticated when the token is invalid, the user is gone or
// inactive, or the password changed after the token was issued.
func (g *Guard) AuthenticateToken(ctx context.Context, token string) (*User, *Claims, error) {
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return nil, nil, err
	}

	user, err := g.users.FindByID(ctx, claims.UserID, ActiveOnly)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, unauthenticated(ReasonUserGone, "the user belonging to this token no longer exists")
		}
		return nil, nil, storeError("find user by id", err)
	}

	if user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, nil, unauthenticated(ReasonPasswordChanged, "user recently changed password, please log in again")
	}

	return user, claims, nil
}

type userContextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by WithUser, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}
