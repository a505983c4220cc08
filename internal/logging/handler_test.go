// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/parlance-ai/parlance/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", Config{Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "parlance", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", Config{Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "parlance", "Output missing service")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", Config{}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	decode(t, &buf)
}

func TestSetup_RejectsBadConfig(t *testing.T) {
	_, err := Setup("parlance", "1.0.0", Config{Format: "xml"}, &bytes.Buffer{})
	errutil.AssertErrorCode(t, err, "INVALID_LOG_FORMAT")

	_, err = Setup("parlance", "1.0.0", Config{Level: "loud"}, &bytes.Buffer{})
	errutil.AssertErrorCode(t, err, "INVALID_LOG_LEVEL")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", DefaultConfig(), &buf)
	require.NoError(t, err)

	logger.With("jwt_secret", "s3cr3t").Info("login",
		"password", "hunter2",
		"passwordConfirm", "hunter2",
		"reset_token", "abc123",
		"Authorization", "Bearer xyz",
		"user_id", "01HZY",
		"attempts", 3,
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "s3cr3t")
	assert.NotContains(t, out, "xyz")

	entry := decode(t, &buf)
	assert.Equal(t, Redacted, entry["password"])
	assert.Equal(t, Redacted, entry["reset_token"])
	assert.Equal(t, "01HZY", entry["user_id"])
	assert.InDelta(t, 3, entry["attempts"], 0)
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", DefaultConfig(), &buf)
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("parlance", "1.0.0", DefaultConfig(), &buf)
	require.NoError(t, err)

	logger.Info("no trace message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault("parlance", "2.0.0", DefaultConfig())
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
