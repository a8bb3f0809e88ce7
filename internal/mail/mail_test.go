// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package mail_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/mail"
	"github.com/tollgate/tollgate/pkg/errutil"
)

type mockEmails struct {
	mock.Mock
}

func (m *mockEmails) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(ctx, params)
	resp, _ := args.Get(0).(*resend.SendEmailResponse)
	return resp, args.Error(1)
}

func testUser() *auth.User {
	return &auth.User{ID: ulid.Make(), Name: "Ada", Email: "ada+test@example.com"}
}

func TestResetLink(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"default template", "", "http://localhost:3000/reset-password/abc123?email=ada%2Btest%40example.com"},
		{"custom template", "https://app.example.com/reset?token={token}&email={email}",
			"https://app.example.com/reset?token=abc123&email=ada%2Btest%40example.com"},
		{"token only", "https://app.example.com/r/{token}", "https://app.example.com/r/abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mail.ResetLink(tt.template, "ada+test@example.com", "abc123"))
		})
	}
}

func TestLogMailer_SendResetLink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	user := testUser()

	err := mail.NewLogMailer(logger, "").SendResetLink(context.Background(), user, "tok")
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "password reset link", entry["msg"])
	assert.Equal(t, user.ID.String(), entry["user_id"])
	assert.Contains(t, entry["link"], "/reset-password/tok?email=")
}

func TestResendMailer_SendResetLink(t *testing.T) {
	ctx := context.Background()
	user := testUser()

	t.Run("sends to the account email", func(t *testing.T) {
		emails := &mockEmails{}
		emails.On("SendWithContext", ctx, mock.MatchedBy(func(req *resend.SendEmailRequest) bool {
			return req.From == "Tollgate <no-reply@example.com>" &&
				len(req.To) == 1 && req.To[0] == user.Email &&
				req.Subject == mail.ResetSubject &&
				bytes.Contains([]byte(req.Text), []byte("/reset-password/tok?")) &&
				bytes.Contains([]byte(req.Text), []byte("expire in 60 minutes"))
		})).Return(&resend.SendEmailResponse{Id: "email_1"}, nil)

		mailer, err := mail.NewResendMailerWithSender(emails, mail.ResendConfig{From: "Tollgate <no-reply@example.com>"})
		require.NoError(t, err)
		require.NoError(t, mailer.SendResetLink(ctx, user, "tok"))
		emails.AssertExpectations(t)
	})

	t.Run("wraps provider errors", func(t *testing.T) {
		emails := &mockEmails{}
		emails.On("SendWithContext", ctx, mock.Anything).Return(nil, errors.New("rate limited"))

		mailer, err := mail.NewResendMailerWithSender(emails, mail.ResendConfig{From: "no-reply@example.com"})
		require.NoError(t, err)

		err = mailer.SendResetLink(ctx, user, "tok")
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		errutil.AssertErrorContext(t, err, "provider", "resend")
	})
}

func TestNewResendMailer_Validation(t *testing.T) {
	_, err := mail.NewResendMailer(mail.ResendConfig{From: "a@example.com"})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	_, err = mail.NewResendMailerWithSender(nil, mail.ResendConfig{From: "a@example.com"})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	_, err = mail.NewResendMailerWithSender(&mockEmails{}, mail.ResendConfig{})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	mailer, err := mail.NewResendMailer(mail.ResendConfig{APIKey: "re_test", From: "a@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, mailer)
}

func TestSender(t *testing.T) {
	sender, err := mail.Sender("log", nil, mail.ResendConfig{})
	require.NoError(t, err)
	assert.IsType(t, &mail.LogMailer{}, sender)

	sender, err = mail.Sender("resend", nil, mail.ResendConfig{APIKey: "re_test", From: "a@example.com"})
	require.NoError(t, err)
	assert.IsType(t, &mail.ResendMailer{}, sender)

	_, err = mail.Sender("smtp", nil, mail.ResendConfig{})
	errutil.AssertErrorCode(t, err, "MAIL_UNKNOWN_DRIVER")
}
