// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/pkg/errutil"
)

// maxBodyBytes caps request bodies; every accepted payload is a few small strings.
const maxBodyBytes = 1 << 20

// retryAfterSeconds is advertised when mail delivery failed.
const retryAfterSeconds = 60

// Response status values.
const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// CodeBadRequest marks a body that could not be decoded.
const CodeBadRequest = "BAD_REQUEST"

type errorBody struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case auth.CodeValidation, auth.CodeResetTokenInvalid, CodeBadRequest:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	case auth.CodeForbidden:
		return http.StatusForbidden
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeDeliveryFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.LogErrorContext(r.Context(), logger, "failed to encode response",
			oops.With("request_id", middleware.GetReqID(r.Context())).Wrap(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away; nothing left to report to
	w.Write(data)
}

// writeError renders err by its code. Server-side failures are logged and
// answered with a generic message so internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := errutil.Code(err)
	status := statusFor(code)

	body := errorBody{Status: statusFail, Message: err.Error()}
	if fields, ok := errutil.ContextValue(err, "fields"); ok {
		if m, ok := fields.(map[string]string); ok {
			body.Errors = m
		}
	}

	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		body.Status = statusError
	case status >= http.StatusInternalServerError:
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
		body = errorBody{Status: statusError, Message: "something went very wrong"}
	}

	writeJSON(w, r, logger, status, body)
}

// decodeJSON reads a JSON object body into dst. Unknown fields are ignored,
// so clients cannot smuggle a role in but are not rejected for trying.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return oops.Code(CodeBadRequest).Errorf("request body must not be empty")
		case errors.As(err, &maxErr):
			return oops.Code(CodeBadRequest).Errorf("request body must not be larger than %d bytes", maxErr.Limit)
		default:
			return oops.Code(CodeBadRequest).Errorf("request body contains badly-formed JSON")
		}
	}
	return nil
}
