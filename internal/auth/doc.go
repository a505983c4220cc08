// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package auth provides account and session authentication for Parlance.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the signup input and
// takes an already computed password hash. Direct struct initialization
// bypasses validation; repositories re-check every record with
// User.ValidateProfile before writing it.
//
// Every repository read takes an explicit Visibility. Authentication paths
// always pass ActiveOnly so soft-deleted users can never log in.
//
// # Services
//
// Service types coordinate domain operations:
//   - TokenService - issue and verify signed session tokens
//   - PasswordResetService - the reset-token protocol
//   - Service - signup, login, password change and forgotten-password recovery
//   - Guard - resolve a bearer token to its user; Authorize checks roles
//
// Services are created with New* constructors that validate dependencies and
// accept Option values for logging, clocks, metrics and mail delivery.
//
// # Errors
//
// All public operations return samber/oops errors carrying one of the Code*
// constants. Unauthenticated errors also carry a "reason" context value.
package auth
