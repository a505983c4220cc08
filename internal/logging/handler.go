// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package logging provides structured logging with OpenTelemetry trace context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Redacted replaces the value of any string attribute whose key names a credential.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched as substrings of the lower-cased attribute key.
var sensitiveKeys = []string{"password", "secret", "token", "authorization", "cookie"}

// Config selects the log level and output format.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultConfig logs at info level as JSON.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, oops.Code("INVALID_LOG_LEVEL").With("level", name).Wrap(err)
	}
	return level, nil
}

// traceHandler wraps a slog.Handler to add trace context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// redact masks string values stored under credential-like keys.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || a.Value.String() == "" {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, Redacted)
		}
	}
	return a
}

// Setup creates a configured slog.Logger.
// cfg.Format is "json" or "text" (defaults to "json" if empty).
// If w is nil, writes to os.Stderr.
func Setup(service, version string, cfg Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	switch cfg.Format {
	case "text":
		baseHandler = slog.NewTextHandler(w, opts)
	case "", "json":
		baseHandler = slog.NewJSONHandler(w, opts)
	default:
		return nil, oops.Code("INVALID_LOG_FORMAT").With("format", cfg.Format).Errorf("log format must be json or text")
	}

	handler := &traceHandler{
		handler: baseHandler,
		service: service,
		version: version,
	}

	return slog.New(handler), nil
}

// SetDefault sets up and configures the default logger and returns it.
func SetDefault(service, version string, cfg Config) (*slog.Logger, error) {
	logger, err := Setup(service, version, cfg, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
