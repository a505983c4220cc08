// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

//go:build integration

package accounts_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/parlance-ai/parlance/internal/auth"
)

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token"`
	Data    struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	} `json:"data"`
}

// call sends a JSON request to the API and decodes the reply.
func call(method, path, token string, body any) (int, apiResponse) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+"/api/v1/users"+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out apiResponse
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func uniqueEmail(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String()) + "@example.com"
}

func signup(email, password string) apiResponse {
	status, resp := call(http.MethodPost, "/signup", "", map[string]string{
		"name":            "Integration User",
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
	})
	Expect(status).To(Equal(http.StatusCreated))
	return resp
}

var _ = Describe("Account lifecycle", func() {
	It("signs up, logs in and reads the profile", func() {
		email := uniqueEmail("lifecycle")
		created := signup(email, "correct-horse")
		Expect(created.Data.User.Role).To(Equal("user"))

		status, login := call(http.MethodPost, "/login", "", map[string]string{
			"email": strings.ToUpper(email), "password": "correct-horse",
		})
		Expect(status).To(Equal(http.StatusOK))
		Expect(login.Token).NotTo(BeEmpty())

		status, me := call(http.MethodGet, "/me", login.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(me.Data.User.ID).To(Equal(created.Data.User.ID))
		Expect(me.Data.User.Email).To(Equal(email))
	})

	It("rejects a second account with the same email", func() {
		email := uniqueEmail("dup")
		signup(email, "correct-horse")

		status, resp := call(http.MethodPost, "/signup", "", map[string]string{
			"name":            "Someone Else",
			"email":           email,
			"password":        "correct-horse",
			"passwordConfirm": "correct-horse",
		})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(resp.Status).To(Equal("fail"))
	})

	It("revokes older sessions when the password changes", func() {
		email := uniqueEmail("update")
		created := signup(email, "correct-horse")

		// Revocation compares whole seconds with a one second skew.
		time.Sleep(2100 * time.Millisecond)

		status, updated := call(http.MethodPatch, "/updatePassword", created.Token, map[string]string{
			"currentPassword": "correct-horse",
			"password":        "battery-staple",
			"passwordConfirm": "battery-staple",
		})
		Expect(status).To(Equal(http.StatusOK))

		status, stale := call(http.MethodGet, "/me", created.Token, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(stale.Message).To(ContainSubstring("recently changed password"))

		status, _ = call(http.MethodGet, "/me", updated.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
	})

	It("resets a forgotten password exactly once", func() {
		email := uniqueEmail("reset")
		signup(email, "correct-horse")

		status, resp := call(http.MethodPost, "/forgotPassword", "", map[string]string{"email": email})
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp.Message).To(Equal("Token sent to email!"))

		token := env.mail.resetToken(email)

		stored, err := env.users.FindByEmail(env.ctx, email, auth.ActiveOnly)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordResetToken).To(Equal(auth.HashResetToken(token)))
		Expect(stored.PasswordResetToken).NotTo(Equal(token))

		newPassword := map[string]string{"password": "new-secret-pass", "passwordConfirm": "new-secret-pass"}
		status, reset := call(http.MethodPatch, "/resetPassword/"+token, "", newPassword)
		Expect(status).To(Equal(http.StatusOK))
		Expect(reset.Token).NotTo(BeEmpty())

		status, _ = call(http.MethodPatch, "/resetPassword/"+token, "", newPassword)
		Expect(status).To(Equal(http.StatusBadRequest))

		status, _ = call(http.MethodPost, "/login", "", map[string]string{"email": email, "password": "new-secret-pass"})
		Expect(status).To(Equal(http.StatusOK))
	})

	It("keeps deactivated users out but visible to admins", func() {
		email := uniqueEmail("inactive")
		user := signup(email, "correct-horse")
		adminEmail := uniqueEmail("admin")
		admin := signup(adminEmail, "correct-horse")

		stored, err := env.users.FindByEmail(env.ctx, adminEmail, auth.ActiveOnly)
		Expect(err).NotTo(HaveOccurred())
		stored.Role = auth.RoleAdmin
		Expect(env.users.Save(env.ctx, stored)).To(Succeed())

		stored, err = env.users.FindByEmail(env.ctx, email, auth.ActiveOnly)
		Expect(err).NotTo(HaveOccurred())
		stored.Active = false
		Expect(env.users.Save(env.ctx, stored)).To(Succeed())

		status, _ := call(http.MethodPost, "/login", "", map[string]string{"email": email, "password": "correct-horse"})
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, _ = call(http.MethodGet, "/me", user.Token, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, found := call(http.MethodGet, "/"+user.Data.User.ID, admin.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(found.Data.User.Email).To(Equal(email))
	})

	It("counts operations by outcome", func() {
		before := testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues(auth.OpLogin, "auth_invalid_credentials"))
		status, _ := call(http.MethodPost, "/login", "", map[string]string{
			"email": uniqueEmail("nobody"), "password": "whatever-pass",
		})
		Expect(status).To(Equal(http.StatusUnauthorized))
		after := testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues(auth.OpLogin, "auth_invalid_credentials"))
		Expect(after - before).To(Equal(1.0))
	})
})
