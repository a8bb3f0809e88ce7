// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/httpapi"
)

var _ = Describe("Auth API", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(harnessOptions{})
	})

	Describe("GET /up", func() {
		It("reports ok", func() {
			res := h.do(http.MethodGet, "/up", nil, "")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("POST /api/auth/register", func() {
		It("creates the user and returns a bearer token", func() {
			token, user := h.register("Ada Lovelace", "  Ada@Example.COM ", "correct horse")

			Expect(token).To(ContainSubstring("|"))
			Expect(user).To(HaveKeyWithValue("email", "ada@example.com"))
			Expect(user).To(HaveKeyWithValue("name", "Ada Lovelace"))
			Expect(user).To(HaveKeyWithValue("email_verified_at", BeNil()))
			Expect(user).To(HaveKey("created_at"))
			Expect(user).NotTo(HaveKey("password"))
			Expect(user).NotTo(HaveKey("password_hash"))

			me := h.do(http.MethodGet, "/api/auth/user", nil, token)
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.body["data"]).To(HaveKeyWithValue("id", user["id"]))
		})

		It("reports every invalid field at once", func() {
			res := h.do(http.MethodPost, "/api/auth/register", map[string]string{
				"email":                 "not-an-email",
				"password":              "short",
				"password_confirmation": "different",
			}, "")

			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			errs := fieldErrors(res)
			Expect(errs).To(HaveKey("name"))
			Expect(errs).To(HaveKey("email"))
			Expect(errs).To(HaveKey("password"))
			Expect(res.body["message"]).To(MatchRegexp(`\(and \d+ more errors?\)$`))
		})

		It("rejects an email that differs only by case", func() {
			h.register("Ada", "ada@example.com", "correct horse")

			res := h.do(http.MethodPost, "/api/auth/register", map[string]string{
				"name":                  "Imposter",
				"email":                 "ADA@example.com",
				"password":              "correct horse",
				"password_confirmation": "correct horse",
			}, "")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)["email"]).To(ContainElement("The email has already been taken."))
		})

		It("answers malformed JSON with 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(httpapi.MsgMalformedRequest))
		})
	})

	Describe("POST /api/auth/login", func() {
		BeforeEach(func() {
			h.register("Ada", "ada@example.com", "correct horse")
		})

		It("issues a fresh token for valid credentials", func() {
			res := h.login("ADA@example.com", "correct horse")
			Expect(res.status).To(Equal(http.StatusOK))

			data := res.body["data"].(map[string]any)
			Expect(data).To(HaveKeyWithValue("token_type", "Bearer"))
			Expect(data["user"]).To(HaveKeyWithValue("email", "ada@example.com"))
		})

		It("rejects a wrong password on the email field", func() {
			res := h.login("ada@example.com", "wrong password")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)["email"]).To(ConsistOf(auth.MsgInvalidCredentials))
		})

		It("requires email and password", func() {
			res := h.login("", "")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)).To(HaveKey("email"))
			Expect(fieldErrors(res)).To(HaveKey("password"))
		})

		It("locks the email and IP out after five failures", func() {
			for range 5 {
				Expect(h.login("ada@example.com", "wrong password").status).To(Equal(http.StatusUnprocessableEntity))
			}

			res := h.login("ada@example.com", "correct horse")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)["email"]).To(ConsistOf(
				"Too many login attempts. Please try again in 60 seconds."))

			h.clock.Advance(61 * time.Second)
			Expect(h.login("ada@example.com", "correct horse").status).To(Equal(http.StatusOK))
		})
	})

	Describe("authenticated routes", func() {
		var token string

		BeforeEach(func() {
			token, _ = h.register("Ada", "ada@example.com", "correct horse")
		})

		DescribeTable("reject missing or bad credentials",
			func(method, path, bearer string) {
				res := h.do(method, path, nil, bearer)
				Expect(res.status).To(Equal(http.StatusUnauthorized))
				Expect(res.body).To(HaveKeyWithValue("message", "Unauthenticated."))
			},
			Entry("user without token", http.MethodGet, "/api/auth/user", ""),
			Entry("user with garbage", http.MethodGet, "/api/auth/user", "garbage"),
			Entry("user with unknown id", http.MethodGet, "/api/auth/user", "01ARZ3NDEKTSV4RRFFQ69G5FAV|secret"),
			Entry("legacy user route", http.MethodGet, "/api/user", ""),
			Entry("logout", http.MethodPost, "/api/auth/logout", ""),
			Entry("logout all", http.MethodDelete, "/api/auth/logout/all", ""),
		)

		It("rejects a token whose secret was tampered with", func() {
			id, _, _ := strings.Cut(token, "|")
			res := h.do(http.MethodGet, "/api/auth/user", nil, id+"|"+strings.Repeat("0", 80))
			Expect(res.status).To(Equal(http.StatusUnauthorized))
		})

		It("serves the bare user on the legacy route", func() {
			res := h.do(http.MethodGet, "/api/user", nil, token)
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("email", "ada@example.com"))
			Expect(res.body).NotTo(HaveKey("data"))
		})

		It("logs out only the presented token", func() {
			other := h.login("ada@example.com", "correct horse").body["data"].(map[string]any)["token"].(string)

			res := h.do(http.MethodPost, "/api/auth/logout", nil, token)
			Expect(res.status).To(Equal(http.StatusNoContent))

			Expect(h.do(http.MethodGet, "/api/auth/user", nil, token).status).To(Equal(http.StatusUnauthorized))
			Expect(h.do(http.MethodGet, "/api/auth/user", nil, other).status).To(Equal(http.StatusOK))
		})

		It("logs out every device", func() {
			other := h.login("ada@example.com", "correct horse").body["data"].(map[string]any)["token"].(string)

			res := h.do(http.MethodDelete, "/api/auth/logout/all", nil, token)
			Expect(res.status).To(Equal(http.StatusNoContent))

			Expect(h.do(http.MethodGet, "/api/auth/user", nil, token).status).To(Equal(http.StatusUnauthorized))
			Expect(h.do(http.MethodGet, "/api/auth/user", nil, other).status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("password reset", func() {
		var token string

		BeforeEach(func() {
			token, _ = h.register("Ada", "ada@example.com", "correct horse")
		})

		forgot := func(email string) response {
			return h.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "")
		}
		reset := func(email, resetToken, password string) response {
			return h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{
				"email":                 email,
				"token":                 resetToken,
				"password":              password,
				"password_confirmation": password,
			}, "")
		}

		It("emails a link to a known address", func() {
			res := forgot("Ada@Example.com")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("message", auth.MsgResetLinkSent))
			Expect(h.outbox.tokenFor("ada@example.com")).To(HaveLen(64))
		})

		It("tells the client when the address is unknown", func() {
			res := forgot("nobody@example.com")
			Expect(res.status).To(Equal(http.StatusBadRequest))
			Expect(res.body).To(HaveKeyWithValue("message", auth.MsgResetUserNotFound))
		})

		It("validates the email", func() {
			res := forgot("nope")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)).To(HaveKey("email"))
		})

		It("asks the client to wait before requesting another link", func() {
			Expect(forgot("ada@example.com").status).To(Equal(http.StatusOK))

			res := forgot("ada@example.com")
			Expect(res.status).To(Equal(http.StatusBadRequest))
			Expect(res.body).To(HaveKeyWithValue("message", auth.MsgResetThrottled))

			h.clock.Advance(61 * time.Second)
			Expect(forgot("ada@example.com").status).To(Equal(http.StatusOK))
		})

		It("resets the password once per token", func() {
			Expect(forgot("ada@example.com").status).To(Equal(http.StatusOK))
			resetToken := h.outbox.tokenFor("ada@example.com")

			res := reset("ada@example.com", resetToken, "new password!")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("message", auth.MsgPasswordReset))

			Expect(h.login("ada@example.com", "correct horse").status).To(Equal(http.StatusUnprocessableEntity))
			Expect(h.login("ada@example.com", "new password!").status).To(Equal(http.StatusOK))

			again := reset("ada@example.com", resetToken, "another password")
			Expect(again.status).To(Equal(http.StatusBadRequest))
			Expect(again.body).To(HaveKeyWithValue("message", auth.MsgResetTokenInvalid))

			By("keeping existing tokens by default")
			Expect(h.do(http.MethodGet, "/api/auth/user", nil, token).status).To(Equal(http.StatusOK))
		})

		It("rejects a wrong or expired token", func() {
			Expect(forgot("ada@example.com").status).To(Equal(http.StatusOK))
			resetToken := h.outbox.tokenFor("ada@example.com")

			Expect(reset("ada@example.com", strings.Repeat("a", 64), "new password!").status).To(Equal(http.StatusBadRequest))

			h.clock.Advance(61 * time.Minute)
			res := reset("ada@example.com", resetToken, "new password!")
			Expect(res.status).To(Equal(http.StatusBadRequest))
			Expect(res.body).To(HaveKeyWithValue("message", auth.MsgResetTokenInvalid))
		})

		It("validates the reset form", func() {
			res := h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{
				"email":                 "ada@example.com",
				"password":              "short",
				"password_confirmation": "short",
			}, "")
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(fieldErrors(res)).To(HaveKey("token"))
			Expect(fieldErrors(res)).To(HaveKey("password"))
		})
	})

	Describe("password reset with revocation", func() {
		It("revokes existing tokens", func() {
			h = newHarness(harnessOptions{revokeOnReset: true})
			token, _ := h.register("Ada", "ada@example.com", "correct horse")

			Expect(h.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ada@example.com"}, "").status).
				To(Equal(http.StatusOK))
			res := h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{
				"email":                 "ada@example.com",
				"token":                 h.outbox.tokenFor("ada@example.com"),
				"password":              "new password!",
				"password_confirmation": "new password!",
			}, "")
			Expect(res.status).To(Equal(http.StatusOK))

			Expect(h.do(http.MethodGet, "/api/auth/user", nil, token).status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("per-IP throttle", func() {
		It("answers 429 once the reset routes exceed the budget", func() {
			h = newHarness(harnessOptions{throttlePerMinute: 2})

			for range 2 {
				Expect(h.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "x@example.com"}, "").status).
					To(Equal(http.StatusBadRequest))
			}

			res := h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{}, "")
			Expect(res.status).To(Equal(http.StatusTooManyRequests))
			Expect(res.body).To(HaveKeyWithValue("message", httpapi.MsgTooManyRequests))
			Expect(res.header.Get("Retry-After")).To(Equal("30"))

			h.clock.Advance(30 * time.Second)
			Expect(h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{}, "").status).
				To(Equal(http.StatusUnprocessableEntity))
		})
	})

	Describe("CORS", func() {
		It("allows configured origin patterns", func() {
			h = newHarness(harnessOptions{corsOrigins: []string{"https://*.example.com"}})

			preflight := func(origin string) *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
				req.Header.Set("Origin", origin)
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				rec := httptest.NewRecorder()
				h.server.ServeHTTP(rec, req)
				return rec
			}

			allowed := preflight("https://app.example.com")
			Expect(allowed.Code).To(Equal(http.StatusNoContent))
			Expect(allowed.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))

			denied := preflight("https://evil.test")
			Expect(denied.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		})
	})

	Describe("fallbacks and metrics", func() {
		It("answers unknown routes with JSON", func() {
			res := h.do(http.MethodGet, "/api/nope", nil, "")
			Expect(res.status).To(Equal(http.StatusNotFound))
			Expect(res.body).To(HaveKeyWithValue("message", httpapi.MsgNotFound))
		})

		It("counts requests by route template", func() {
			h.register("Ada", "ada@example.com", "correct horse")
			h.login("ada@example.com", "wrong password")

			Expect(testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/api/auth/register", "201"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/api/auth/login", "422"))).To(Equal(1.0))
		})
	})
})
