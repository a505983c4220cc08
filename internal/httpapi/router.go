// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package httpapi exposes the account operations as a JSON API under /api/v1/users.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/internal/auth"
)

// APIPrefix is the mount point of the account routes.
const APIPrefix = "/api/v1/users"

// RequestRecorder counts served requests by route pattern.
type RequestRecorder interface {
	RecordHTTPRequest(route string, status int)
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(string, int) {}

// Deps are the collaborators the API needs.
type Deps struct {
	Service *auth.Service
	Guard   *auth.Guard
	Users   auth.UserRepository

	// AllowedOrigin is the single browser origin allowed to call the API with credentials.
	AllowedOrigin string
	// Production marks the session cookie Secure.
	Production bool
	// CookieTTL is the lifetime of the session cookie.
	CookieTTL time.Duration

	Logger  *slog.Logger
	Metrics RequestRecorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// API holds the request handlers.
type API struct {
	deps Deps
}

// route is one entry of the route table. A nil roles set means the route is public.
type route struct {
	method  string
	pattern string
	roles   auth.RoleSet
	handler http.HandlerFunc
}

// New validates deps and creates the API.
func New(deps Deps) (*API, error) {
	if deps.Service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if deps.Guard == nil {
		return nil, oops.Errorf("guard is required")
	}
	if deps.Users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if deps.CookieTTL <= 0 {
		return nil, oops.With("cookie_ttl", deps.CookieTTL).Errorf("cookie TTL must be positive")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &API{deps: deps}, nil
}

func (a *API) routes() []route {
	return []route{
		{method: http.MethodPost, pattern: "/signup", handler: a.handleSignup},
		{method: http.MethodPost, pattern: "/login", handler: a.handleLogin},
		{method: http.MethodPost, pattern: "/forgotPassword", handler: a.handleForgotPassword},
		{method: http.MethodPatch, pattern: "/resetPassword/{token}", handler: a.handleResetPassword},
		{method: http.MethodPatch, pattern: "/updatePassword", roles: auth.AnyRole(), handler: a.handleUpdatePassword},
		{method: http.MethodGet, pattern: "/me", roles: auth.AnyRole(), handler: a.handleMe},
		{method: http.MethodGet, pattern: "/me/chatHistory", roles: auth.AnyRole(), handler: a.handleChatHistory},
		{method: http.MethodGet, pattern: "/{id}", roles: auth.Roles(auth.RoleAdmin), handler: a.handleGetUser},
	}
}

// Router builds the HTTP handler.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(a.deps.AllowedOrigin),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(a.handleNotFound)
	r.MethodNotAllowed(a.handleMethodNotAllowed)

	r.Route(APIPrefix, func(r chi.Router) {
		for _, rt := range a.routes() {
			h := http.Handler(rt.handler)
			if rt.roles != nil {
				h = a.authenticate(rt.roles)(h)
			}
			r.Method(rt.method, rt.pattern, h)
		}
	})

	return r
}

func allowedOrigins(origin string) []string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil
	}
	return []string{strings.TrimSuffix(origin, "/")}
}

// ResetLinkBase is the URL reset tokens are appended to in the mail.
func ResetLinkBase(publicURL string) string {
	return strings.TrimSuffix(publicURL, "/") + APIPrefix + "/resetPassword/"
}

func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, a.deps.Logger, http.StatusNotFound, errorBody{
		Status:  statusFail,
		Message: "can't find " + r.Method + " route on this server",
	})
}

func (a *API) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, a.deps.Logger, http.StatusMethodNotAllowed, errorBody{
		Status:  statusFail,
		Message: r.Method + " is not allowed on this route",
	})
}
