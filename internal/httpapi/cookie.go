// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package httpapi

import (
	"net/http"

	"github.com/parlance-ai/parlance/internal/auth"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "jwt"

func (a *API) sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  a.deps.Now().Add(a.deps.CookieTTL),
		HttpOnly: true,
		Secure:   a.deps.Production,
		SameSite: http.SameSiteStrictMode,
	}
}

type userData struct {
	User *auth.User `json:"user"`
}

type tokenResponse struct {
	Status  string   `json:"status"`
	Token   string   `json:"token"`
	Message string   `json:"message,omitempty"`
	Data    userData `json:"data"`
}

// sendToken sets the session cookie and writes the token with its user.
func (a *API) sendToken(w http.ResponseWriter, r *http.Request, status int, user *auth.User, token, message string) {
	http.SetCookie(w, a.sessionCookie(token))
	writeJSON(w, r, a.deps.Logger, status, tokenResponse{
		Status:  statusSuccess,
		Token:   token,
		Message: message,
		Data:    userData{User: user},
	})
}
