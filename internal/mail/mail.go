// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package mail delivers password reset links.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// DefaultResetURL is used when no reset link template is configured. The
// {token} and {email} placeholders are replaced with query-escaped values.
const DefaultResetURL = "http://localhost:3000/reset-password/{token}?email={email}"

// ResetSubject is the subject line of reset emails.
const ResetSubject = "Reset Password Notification"

// ResetLink expands a reset URL template.
func ResetLink(template, email, token string) string {
	if template == "" {
		template = DefaultResetURL
	}
	return strings.NewReplacer(
		"{token}", url.PathEscape(token),
		"{email}", url.QueryEscape(email),
	).Replace(template)
}

func resetBody(name, link string, ttlMinutes int) string {
	return fmt.Sprintf(`Hello %s,

You are receiving this email because we received a password reset request for your account.

Reset your password: %s

This password reset link will expire in %d minutes.

If you did not request a password reset, no further action is required.
`, name, link, ttlMinutes)
}

// LogMailer writes reset links to the log instead of sending email. It is
// meant for development.
type LogMailer struct {
	logger      *slog.Logger
	urlTemplate string
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger, urlTemplate string) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger, urlTemplate: urlTemplate}
}

// SendResetLink logs the reset link for user.
func (m *LogMailer) SendResetLink(_ context.Context, user *auth.User, token string) error {
	m.logger.Info("password reset link",
		"user_id", user.ID.String(),
		"email", user.Email,
		"link", ResetLink(m.urlTemplate, user.Email, token))
	return nil
}

// Sender selects a mailer by driver name: "log" or "resend".
func Sender(driver string, logger *slog.Logger, cfg ResendConfig) (auth.ResetLinkSender, error) {
	switch driver {
	case "", "log":
		return NewLogMailer(logger, cfg.ResetURL), nil
	case "resend":
		mailer, err := NewResendMailer(cfg)
		if err != nil {
			return nil, err
		}
		return mailer, nil
	default:
		return nil, oops.Code("MAIL_UNKNOWN_DRIVER").With("driver", driver).
			Errorf("unknown mail driver %q", driver)
	}
}

var _ auth.ResetLinkSender = (*LogMailer)(nil)
