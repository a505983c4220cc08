// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/auth"
)

func TestGenerateResetToken(t *testing.T) {
	t.Run("generates secure token", func(t *testing.T) {
		token, hash, err := auth.GenerateResetToken()
		require.NoError(t, err)
		assert.Len(t, token, 2*auth.ResetTokenBytes)
		assert.Len(t, hash, 64)
		assert.NotEqual(t, token, hash)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, hash1, err := auth.GenerateResetToken()
		require.NoError(t, err)

		token2, hash2, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("hash is the fingerprint of the token", func(t *testing.T) {
		token, hash, err := auth.GenerateResetToken()
		require.NoError(t, err)
		assert.Equal(t, hash, auth.HashResetToken(token))
	})
}

func TestHashResetToken(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, auth.HashResetToken("abc"), auth.HashResetToken("abc"))
	})

	t.Run("known vector", func(t *testing.T) {
		// sha256("abc")
		assert.Equal(t,
			"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			auth.HashResetToken("abc"))
	})

	t.Run("differs per token", func(t *testing.T) {
		assert.NotEqual(t, auth.HashResetToken("abc"), auth.HashResetToken("abd"))
	})
}
