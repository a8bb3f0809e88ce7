// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

type apiResponse struct {
	status int
	header http.Header
	body   map[string]any
}

func call(method, path string, body any, bearer string) apiResponse {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.api.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := env.api.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode, header: resp.Header}
	if resp.ContentLength != 0 && resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out.body)
	}
	return out
}

// uniqueEmail keeps specs independent on the shared database.
func uniqueEmail() string {
	return strings.ToLower(ulid.Make().String()) + "@example.com"
}

func registerUser(email, password string) string {
	resp := call(http.MethodPost, "/api/auth/register", map[string]string{
		"name":                  "Integration User",
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	}, "")
	Expect(resp.status).To(Equal(http.StatusCreated))
	token, ok := resp.body["token"].(string)
	Expect(ok).To(BeTrue())
	return token
}

var _ = Describe("Auth API on PostgreSQL and Redis", func() {
	const password = "correct horse battery"

	Describe("registration", func() {
		It("creates a user and returns a working token", func() {
			email := uniqueEmail()
			token := registerUser(email, password)

			resp := call(http.MethodGet, "/api/auth/user", nil, token)
			Expect(resp.status).To(Equal(http.StatusOK))
			data := resp.body["data"].(map[string]any)
			Expect(data["email"]).To(Equal(email))
			Expect(data).To(HaveKey("id"))
		})

		It("rejects a duplicate email regardless of case", func() {
			email := uniqueEmail()
			registerUser(email, password)

			resp := call(http.MethodPost, "/api/auth/register", map[string]string{
				"name":                  "Second",
				"email":                 strings.ToUpper(email),
				"password":              password,
				"password_confirmation": password,
			}, "")
			Expect(resp.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(resp.body["errors"]).To(HaveKey("email"))
		})
	})

	Describe("login", func() {
		It("issues independent tokens per session", func() {
			email := uniqueEmail()
			first := registerUser(email, password)

			resp := call(http.MethodPost, "/api/auth/login", map[string]string{
				"email": email, "password": password,
			}, "")
			Expect(resp.status).To(Equal(http.StatusOK))
			second := resp.body["token"].(string)
			Expect(second).NotTo(Equal(first))

			Expect(call(http.MethodPost, "/api/auth/logout", nil, first).status).To(Equal(http.StatusNoContent))
			Expect(call(http.MethodGet, "/api/auth/user", nil, first).status).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodGet, "/api/auth/user", nil, second).status).To(Equal(http.StatusOK))
		})

		It("locks the email out after repeated failures", func() {
			email := uniqueEmail()
			registerUser(email, password)

			for range 5 {
				resp := call(http.MethodPost, "/api/auth/login", map[string]string{
					"email": email, "password": "wrong password",
				}, "")
				Expect(resp.status).To(Equal(http.StatusUnprocessableEntity))
			}

			resp := call(http.MethodPost, "/api/auth/login", map[string]string{
				"email": email, "password": password,
			}, "")
			Expect(resp.status).To(Equal(http.StatusUnprocessableEntity))
			errs := resp.body["errors"].(map[string]any)
			Expect(errs["email"]).To(ContainElement(ContainSubstring("Too many login attempts")))

			keys, err := env.rdb.Keys(env.ctx, "*").Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).NotTo(BeEmpty())
		})
	})

	Describe("logout everywhere", func() {
		It("revokes every token the user holds", func() {
			email := uniqueEmail()
			first := registerUser(email, password)
			resp := call(http.MethodPost, "/api/auth/login", map[string]string{
				"email": email, "password": password,
			}, "")
			second := resp.body["token"].(string)

			Expect(call(http.MethodDelete, "/api/auth/logout/all", nil, second).status).To(Equal(http.StatusNoContent))
			Expect(call(http.MethodGet, "/api/auth/user", nil, first).status).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodGet, "/api/auth/user", nil, second).status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("password reset", func() {
		It("resets the password once per token", func() {
			email := uniqueEmail()
			registerUser(email, password)

			resp := call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "")
			Expect(resp.status).To(Equal(http.StatusOK))
			token := env.outbox.tokenFor(email)
			Expect(token).NotTo(BeEmpty())

			newPassword := "a brand new passphrase"
			reset := map[string]string{
				"token":                 token,
				"email":                 email,
				"password":              newPassword,
				"password_confirmation": newPassword,
			}
			Expect(call(http.MethodPost, "/api/auth/reset-password", reset, "").status).To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/api/auth/reset-password", reset, "").status).To(Equal(http.StatusBadRequest))

			Expect(call(http.MethodPost, "/api/auth/login", map[string]string{
				"email": email, "password": password,
			}, "").status).To(Equal(http.StatusUnprocessableEntity))
			Expect(call(http.MethodPost, "/api/auth/login", map[string]string{
				"email": email, "password": newPassword,
			}, "").status).To(Equal(http.StatusOK))
		})

		It("throttles repeated requests for the same email", func() {
			email := uniqueEmail()
			registerUser(email, password)

			Expect(call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "").status).
				To(Equal(http.StatusOK))
			Expect(call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "").status).
				To(Equal(http.StatusBadRequest))
		})

		It("prunes only expired rows", func() {
			email := uniqueEmail()
			registerUser(email, password)
			Expect(call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "").status).
				To(Equal(http.StatusOK))

			n, err := env.resetStore.DeleteCreatedBefore(env.ctx, time.Now().Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			row, err := env.resetStore.GetByEmail(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Email).To(Equal(email))
		})
	})
})
