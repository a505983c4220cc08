// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type userResponse struct {
	Status string   `json:"status"`
	Data   userData `json:"data"`
}

type chatHistoryResponse struct {
	Status  string          `json:"status"`
	Results int             `json:"results"`
	Data    chatHistoryData `json:"data"`
}

type chatHistoryData struct {
	ChatHistory []auth.ChatMessage `json:"chatHistory"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	user, token, err := a.deps.Service.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	a.sendToken(w, r, http.StatusCreated, user, token, "User created successfully")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	user, token, err := a.deps.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	a.sendToken(w, r, http.StatusOK, user, token, "")
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	if err := a.deps.Service.ForgotPassword(detached(r), req.Email); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	writeJSON(w, r, a.deps.Logger, http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "Token sent to email!",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	token := chi.URLParam(r, "token")
	user, session, err := a.deps.Service.ResetPassword(r.Context(), token, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	a.sendToken(w, r, http.StatusOK, user, session, "")
}

func (a *API) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	current, _ := auth.UserFromContext(r.Context())
	user, token, err := a.deps.Service.UpdatePassword(r.Context(), current,
		req.CurrentPassword, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, r, a.deps.Logger, err)
		return
	}
	a.sendToken(w, r, http.StatusOK, user, token, "")
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, r, a.deps.Logger, http.StatusOK, userResponse{
		Status: statusSuccess,
		Data:   userData{User: user},
	})
}

func (a *API) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	history := user.ChatHistory
	if history == nil {
		history = []auth.ChatMessage{}
	}
	writeJSON(w, r, a.deps.Logger, http.StatusOK, chatHistoryResponse{
		Status:  statusSuccess,
		Results: len(history),
		Data:    chatHistoryData{ChatHistory: history},
	})
}

// handleGetUser lets admins look up any account, deactivated ones included.
func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.ParseStrict(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, a.deps.Logger, oops.Code(auth.CodeValidation).
			With("fields", map[string]string{"id": "id must be a valid ULID"}).
			Errorf("invalid user id"))
		return
	}
	user, err := a.deps.Users.FindByID(r.Context(), id, auth.IncludeInactive)
	if err != nil {
		if auth.IsNotFound(err) {
			err = oops.Code(auth.CodeUserNotFound).With("user_id", id.String()).Errorf("no user found with that ID")
		} else {
			err = oops.With("operation", "find user by id").Wrap(err)
		}
		writeError(w, r, a.deps.Logger, err)
		return
	}
	writeJSON(w, r, a.deps.Logger, http.StatusOK, userResponse{
		Status: statusSuccess,
		Data:   userData{User: user},
	})
}
