// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes = 32 // 32 bytes = 64 hex chars
	DefaultResetTTL = 10 * time.Minute
)

// ResetConfig configures the password reset flow.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// GenerateResetToken creates a secure random token and its fingerprint.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is mailed to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code(CodeInternal).With("operation", "generate reset token").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the stored fingerprint of a plaintext reset token.
// Lookups go through the fingerprint so the plaintext never reaches storage.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
