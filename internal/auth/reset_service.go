// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/tollgate/tollgate/pkg/errutil"
)

// ResetLinkSender delivers a plaintext reset token to the account owner.
type ResetLinkSender interface {
	SendResetLink(ctx context.Context, user *User, token string) error
}

// ResetInput carries the fields of a password reset request.
type ResetInput struct {
	Email                string
	Token                string
	Password             string
	PasswordConfirmation string
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users   UserRepository
	resets  PasswordResetRepository
	hasher  PasswordHasher
	sender  ResetLinkSender
	logger  *slog.Logger
	metrics *Metrics
	events  EventSink
	revoker *TokenIssuer

	ttl      time.Duration
	throttle time.Duration
	now      func() time.Time
}

// ResetOption configures a PasswordResetService.
type ResetOption func(*PasswordResetService)

// WithResetTTL sets how long a reset token stays valid.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithResetThrottle sets the minimum interval between two reset requests for
// the same email. Zero disables the check.
func WithResetThrottle(d time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		if d >= 0 {
			s.throttle = d
		}
	}
}

// WithTokenRevocation revokes every bearer token of the user after a
// successful reset.
func WithTokenRevocation(issuer *TokenIssuer) ResetOption {
	return func(s *PasswordResetService) { s.revoker = issuer }
}

// WithResetMetrics attaches authentication counters.
func WithResetMetrics(m *Metrics) ResetOption {
	return func(s *PasswordResetService) { s.metrics = m }
}

// WithResetEventSink sets the sink notified with PasswordWasReset.
func WithResetEventSink(sink EventSink) ResetOption {
	return func(s *PasswordResetService) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithResetClock overrides the clock.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *PasswordResetService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPasswordResetService creates a PasswordResetService using the default logger.
func NewPasswordResetService(users UserRepository, resets PasswordResetRepository, hasher PasswordHasher, sender ResetLinkSender, opts ...ResetOption) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, resets, hasher, sender, slog.Default(), opts...)
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with a custom logger.
func NewPasswordResetServiceWithLogger(users UserRepository, resets PasswordResetRepository, hasher PasswordHasher, sender ResetLinkSender, logger *slog.Logger, opts ...ResetOption) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("users repository is required")
	}
	if resets == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("reset repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if sender == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("reset link sender is required")
	}
	if logger == nil {
		return nil, oops.Code("RESET_INVALID_SERVICE").Errorf("logger is required")
	}

	s := &PasswordResetService{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		sender:   sender,
		logger:   logger,
		events:   LogEventSink{Logger: logger},
		ttl:      DefaultResetTokenTTL,
		throttle: DefaultResetThrottle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestReset issues a reset token for email and hands it to the sender.
// Any earlier token for the email is replaced.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.request_reset")
	defer func() { endSpan(span, err) }()

	v := NewValidationError()
	v.checkEmail(email)
	if err := v.Err(); err != nil {
		s.metrics.resetRequested(OutcomeInvalid)
		return err
	}
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.resetRequested(OutcomeFailure)
			return oops.Code(CodeResetUserNotFound).Errorf("%s", MsgResetUserNotFound)
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get user by email").Wrap(err)
	}

	existing, err := s.resets.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.RecentlyCreatedAt(s.now(), s.throttle) {
			s.metrics.resetRequested(OutcomeThrottled)
			return oops.Code(CodeResetThrottled).Errorf("%s", MsgResetThrottled)
		}
	case !errors.Is(err, ErrNotFound):
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get reset by email").Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate reset token").Wrap(err)
	}

	reset, err := NewPasswordReset(email, hash)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "new password reset").Wrap(err)
	}
	reset.CreatedAt = s.now().UTC()

	if err := s.resets.Upsert(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "upsert reset").Wrap(err)
	}

	if err := s.sender.SendResetLink(ctx, user, token); err != nil {
		return oops.Code("RESET_DISPATCH_FAILED").
			With("operation", "send reset link").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.metrics.resetRequested(OutcomeSuccess)
	return nil
}

// ResetPassword replaces the user's password if token is the live reset token
// for email. The token is claimed before the password is written so two
// concurrent requests cannot both use it; if the write fails the token is
// restored.
func (s *PasswordResetService) ResetPassword(ctx context.Context, in ResetInput) (err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { endSpan(span, err) }()

	v := NewValidationError()
	v.requireString("token", in.Token)
	v.checkEmail(in.Email)
	v.checkNewPassword(in.Password, in.PasswordConfirmation)
	if err := v.Err(); err != nil {
		s.metrics.passwordReset(OutcomeInvalid)
		return err
	}
	email := NormalizeEmail(in.Email)

	reset, err := s.resets.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.invalidToken("no reset requested")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "get reset by email").Wrap(err)
	}
	if reset.IsExpiredAt(s.now(), s.ttl) {
		return s.invalidToken("reset token expired")
	}
	if !VerifyResetToken(in.Token, reset.TokenHash) {
		return s.invalidToken("reset token mismatch")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if delErr := s.resets.DeleteByEmail(ctx, email); delErr != nil {
				errutil.LogError(s.logger, "failed to delete orphaned reset", delErr)
			}
			return s.invalidToken("user no longer exists")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "get user by email").Wrap(err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	consumed, err := s.resets.Consume(ctx, email, reset.TokenHash)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "consume reset").Wrap(err)
	}
	if !consumed {
		return s.invalidToken("reset token already consumed")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		// Put the token back so the same link can be retried.
		if rerr := s.resets.Upsert(ctx, reset); rerr != nil {
			errutil.LogError(s.logger, "failed to restore reset token", rerr)
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if s.revoker != nil {
		if _, err := s.revoker.RevokeAll(ctx, user.ID); err != nil {
			errutil.LogError(s.logger, "failed to revoke tokens after password reset", err)
		}
	}

	s.metrics.passwordReset(OutcomeSuccess)
	s.events.Publish(ctx, Event{Type: EventPasswordWasReset, UserID: user.ID, Email: user.Email, At: s.now().UTC()})
	return nil
}

// PruneExpired deletes reset tokens older than the TTL and returns the count
// removed.
func (s *PasswordResetService) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl)
	n, err := s.resets.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_PRUNE_FAILED").With("cutoff", cutoff).Wrap(err)
	}
	s.logger.Info("pruned expired password resets", "count", n)
	return n, nil
}

func (s *PasswordResetService) invalidToken(reason string) error {
	s.metrics.passwordReset(OutcomeFailure)
	return oops.Code(CodeResetTokenInvalid).With("reason", reason).Errorf("%s", MsgResetTokenInvalid)
}
