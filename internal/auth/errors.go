// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/pkg/errutil"
)

// ErrNotFound is returned when a requested user does not exist or is not visible.
var ErrNotFound = errors.New("not found")

// Error codes surfaced by every public operation in this package.
// Callers branch on these via errutil.Code; the transport layer maps them to responses.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeDeliveryFailed     = "RESET_DELIVERY_FAILED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeStoreFailed        = "STORE_FAILED"
	CodeInternal           = "AUTH_INTERNAL"
)

// Reasons attached to CodeUnauthenticated errors under the "reason" context key.
const (
	ReasonMissingToken    = "missing_token"
	ReasonMalformedHeader = "malformed_header"
	ReasonExpired         = "expired"
	ReasonMalformed       = "malformed"
	ReasonSignature       = "signature"
	ReasonClaims          = "claims"
	ReasonUserGone        = "user_gone"
	ReasonPasswordChanged = "password_changed"
)

func unauthenticated(reason, msg string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Errorf("%s", msg)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("incorrect email or password")
}

func invalidResetToken() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("token is invalid or has expired")
}

// storeError annotates a repository failure with the operation that triggered it.
// Errors that already carry a code (not found, validation) keep it.
func storeError(operation string, err error) error {
	if errutil.Code(err) == "" {
		return oops.Code(CodeStoreFailed).With("operation", operation).Wrap(err)
	}
	return oops.With("operation", operation).Wrap(err)
}

// IsNotFound reports whether err means the user lookup found nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
