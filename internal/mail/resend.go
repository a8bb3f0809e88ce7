// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package mail

import (
	"context"

	"github.com/resend/resend-go/v2"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// EmailSender is the part of the Resend client used to send mail.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendConfig configures a ResendMailer.
type ResendConfig struct {
	APIKey   string
	From     string
	ResetURL string
	// TTLMinutes is quoted in the email body.
	TTLMinutes int
}

// ResendMailer sends reset links through the Resend API.
type ResendMailer struct {
	emails EmailSender
	cfg    ResendConfig
}

// NewResendMailer creates a ResendMailer with a client for cfg.APIKey.
func NewResendMailer(cfg ResendConfig) (*ResendMailer, error) {
	if cfg.APIKey == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("resend api key is required")
	}
	return NewResendMailerWithSender(resend.NewClient(cfg.APIKey).Emails, cfg)
}

// NewResendMailerWithSender creates a ResendMailer over an existing sender.
func NewResendMailerWithSender(emails EmailSender, cfg ResendConfig) (*ResendMailer, error) {
	if emails == nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("email sender is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("from address is required")
	}
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = int(auth.DefaultResetTokenTTL.Minutes())
	}
	return &ResendMailer{emails: emails, cfg: cfg}, nil
}

// SendResetLink emails the reset link to user.
func (m *ResendMailer) SendResetLink(ctx context.Context, user *auth.User, token string) error {
	link := ResetLink(m.cfg.ResetURL, user.Email, token)
	_, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.cfg.From,
		To:      []string{user.Email},
		Subject: ResetSubject,
		Text:    resetBody(user.Name, link, m.cfg.TTLMinutes),
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("provider", "resend").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

var _ auth.ResetLinkSender = (*ResendMailer)(nil)
