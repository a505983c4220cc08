// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package errutil holds helpers for inspecting, logging and asserting on
// samber/oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns slog key/value pairs describing err: the message, and for oops
// errors the code and context. Stack traces are left out.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// LogErrorContext is LogError with a context, so handlers can pick up trace IDs.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}
