// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/parlance-ai/parlance/internal/auth"
)

var tracer = otel.Tracer("parlance/httpapi")

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

// authenticate resolves the session from the Authorization header, falling
// back to the session cookie, then checks the user's role against allowed.
func (a *API) authenticate(allowed auth.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.sessionUser(r)
			if err == nil {
				err = auth.Authorize(user, allowed)
			}
			if err != nil {
				writeError(w, r, a.deps.Logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

func (a *API) sessionUser(r *http.Request) (*auth.User, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		user, _, err := a.deps.Guard.Authenticate(r.Context(), header)
		return user, err
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		user, _, err := a.deps.Guard.AuthenticateToken(r.Context(), cookie.Value)
		return user, err
	}
	// An empty header yields the missing-token error.
	user, _, err := a.deps.Guard.Authenticate(r.Context(), "")
	return user, err
}

// accessLog logs and counts every request by its route pattern. Raw paths
// are never logged since they can carry reset tokens.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.deps.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx, span := tracer.Start(r.Context(), "http.request", trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		pattern := routePattern(r)
		a.deps.Metrics.RecordHTTPRequest(pattern, status)

		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", pattern),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		a.deps.Logger.Log(ctx, levelFor(status), "request served",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", pattern,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", a.deps.Now().Sub(start).Round(time.Microsecond).String(),
		)
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// detached keeps request values but not its cancellation, so a reset mail
// that is already being sent is not abandoned when the client hangs up.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
