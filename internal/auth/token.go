// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinTokenSecretLen is the shortest accepted HMAC signing secret, in bytes.
const MinTokenSecretLen = 32

// Token defaults.
const (
	DefaultTokenTTL    = 90 * 24 * time.Hour
	DefaultTokenIssuer = "parlance"
)

// TokenConfig configures session token signing.
type TokenConfig struct {
	Secret    string        `koanf:"secret"`
	TTL       time.Duration `koanf:"ttl"`
	Issuer    string        `koanf:"issuer"`
	CookieTTL time.Duration `koanf:"cookie_ttl"`
}

// Claims are the verified contents of a session token.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the parsed subject. It is set by Issue and Verify.
	UserID ulid.ULID `json:"-"`
}

// TokenService issues and verifies HS256-signed session tokens.
// It is safe for concurrent use; the secret is fixed at construction.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must be at least
// MinTokenSecretLen bytes and the TTL positive. Only WithClock applies.
func NewTokenService(cfg TokenConfig, opts ...Option) (*TokenService, error) {
	if len(cfg.Secret) < MinTokenSecretLen {
		return nil, oops.Code(CodeValidation).
			With("min_length", MinTokenSecretLen).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLen)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code(CodeValidation).With("ttl", cfg.TTL).Errorf("token TTL must be positive")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}

	o := applyOptions(opts)
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: issuer,
		now:    o.now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID, valid from now for the configured TTL.
func (s *TokenService) Issue(userID ulid.ULID) (string, *Claims, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", nil, oops.Code(CodeInternal).Errorf("cannot issue token for zero user ID")
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        ulid.Make().String(),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, oops.Code(CodeInternal).With("operation", "sign token").Wrap(err)
	}
	return signed, claims, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token and returns its claims.
// Every failure is a CodeUnauthenticated error with a "reason" context value.
func (s *TokenService) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, unauthenticated(ReasonMissingToken, "you are not logged in, please log in to get access")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, tokenError(err)
	}

	if claims.IssuedAt == nil {
		return nil, unauthenticated(ReasonClaims, "invalid token, please log in again")
	}
	id, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return nil, unauthenticated(ReasonClaims, "invalid token, please log in again")
	}
	claims.UserID = id
	return claims, nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return unauthenticated(ReasonExpired, "your token has expired, please log in again")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return unauthenticated(ReasonMalformed, "invalid token, please log in again")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return unauthenticated(ReasonSignature, "invalid token, please log in again")
	default:
		return unauthenticated(ReasonClaims, "invalid token, please log in again")
	}
}
