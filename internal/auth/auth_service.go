// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate/tollgate/pkg/errutil"
)

const msgEmailTaken = "The email has already been taken."

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// LoginInput carries the fields of a login request.
type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

// Service provides registration, login and bearer token operations.
type Service struct {
	users       UserRepository
	tokens      *TokenIssuer
	hasher      PasswordHasher
	limiter     AttemptLimiter
	logger      *slog.Logger
	metrics     *Metrics
	events      EventSink
	maxAttempts int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxLoginAttempts sets how many failed logins a throttle key may make
// per window. Values below 1 are ignored.
func WithMaxLoginAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithMetrics attaches authentication counters.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEventSink sets the sink for domain events.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// NewService creates a new Service using the default logger.
func NewService(users UserRepository, tokens *TokenIssuer, hasher PasswordHasher, limiter AttemptLimiter, opts ...ServiceOption) (*Service, error) {
	return NewServiceWithLogger(users, tokens, hasher, limiter, slog.Default(), opts...)
}

// NewServiceWithLogger creates a new Service with a custom logger.
func NewServiceWithLogger(users UserRepository, tokens *TokenIssuer, hasher PasswordHasher, limiter AttemptLimiter, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token issuer is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if limiter == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("attempt limiter is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("logger is required")
	}

	s := &Service{
		users:       users,
		tokens:      tokens,
		hasher:      hasher,
		limiter:     limiter,
		logger:      logger,
		events:      LogEventSink{Logger: logger},
		maxAttempts: DefaultMaxLoginAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dummyPasswordHash is verified against when no user matches the email so
// that unknown and known emails take the same time to reject.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a user and issues their first token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *User, _ *IssuedToken, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)

	v := NewValidationError()
	if v.requireString("name", in.Name) && utf8.RuneCountInString(name) > MaxNameLength {
		v.Add("name", msgMaxLength("name", MaxNameLength))
	}
	v.checkEmail(in.Email)
	v.checkNewPassword(in.Password, in.PasswordConfirmation)

	if !v.Has("email") {
		_, lookupErr := s.users.GetByEmail(ctx, email)
		switch {
		case lookupErr == nil:
			v.Add("email", msgEmailTaken)
		case !errors.Is(lookupErr, ErrNotFound):
			return nil, nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "check email uniqueness").
				Wrap(lookupErr)
		}
	}
	if err := v.Err(); err != nil {
		s.metrics.registration(OutcomeInvalid)
		return nil, nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(name, email, hash)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.metrics.registration(OutcomeInvalid)
			return nil, nil, FieldError("email", msgEmailTaken).Err()
		}
		return nil, nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	issued, err := s.tokens.Issue(ctx, user.ID, DefaultTokenName)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.registration(OutcomeSuccess)
	s.events.Publish(ctx, Event{Type: EventUserRegistered, UserID: user.ID, Email: user.Email, At: user.CreatedAt})
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, issued, nil
}

// Login authenticates an email/password pair and issues a fresh token.
//
// Attempts are throttled per ThrottleKey(email, ip). A throttled attempt is
// rejected before the credential store is consulted. Unknown emails and wrong
// passwords produce the same error on the email field.
func (s *Service) Login(ctx context.Context, in LoginInput) (_ *User, _ *IssuedToken, err error) {
	ctx, span := tracer.Start(ctx, "auth.login", trace.WithAttributes(attribute.String("client.ip", in.ClientIP)))
	defer func() { endSpan(span, err) }()

	v := NewValidationError()
	v.checkEmail(in.Email)
	if in.Password == "" {
		v.Add("password", msgRequired("password"))
	}
	if err := v.Err(); err != nil {
		s.metrics.login(OutcomeInvalid)
		return nil, nil, err
	}

	key := ThrottleKey(in.Email, in.ClientIP)
	count, err := s.limiter.Hit(ctx, key)
	if err != nil {
		return nil, nil, oops.Code("AUTH_LIMITER_FAILED").With("operation", "record login attempt").Wrap(err)
	}
	if count > s.maxAttempts {
		s.undoHit(ctx, key)
		s.metrics.login(OutcomeThrottled)
		span.SetAttributes(attribute.Bool("auth.throttled", true))
		return nil, nil, s.throttledError(ctx, key)
	}

	user, lookupErr := s.users.GetByEmail(ctx, NormalizeEmail(in.Email))
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		s.undoHit(ctx, key)
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(in.Password, targetHash)
	if verifyErr != nil && user != nil {
		errutil.LogError(s.logger, "stored password hash is unreadable", oops.
			With("user_id", user.ID.String()).
			Wrap(verifyErr))
	}
	if user == nil || verifyErr != nil || !valid {
		s.metrics.login(OutcomeFailure)
		return nil, nil, FieldError("email", MsgInvalidCredentials).Err()
	}

	s.undoHit(ctx, key)
	s.upgradeHash(ctx, user, in.Password)

	issued, err := s.tokens.Issue(ctx, user.ID, DefaultTokenName)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.login(OutcomeSuccess)
	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, issued, nil
}

// Logout revokes exactly the given token.
func (s *Service) Logout(ctx context.Context, token *AccessToken) error {
	if token == nil {
		return oops.Code(CodeUnauthenticated).Errorf("%s", MsgUnauthenticated)
	}
	return s.tokens.Revoke(ctx, token.ID)
}

// LogoutAll revokes every token owned by userID, including the one used to
// authenticate the call. Returns the number of tokens removed.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "revoked all tokens", "user_id", userID.String(), "count", n)
	return n, nil
}

// CurrentUser resolves a bearer value to its owning user and token.
func (s *Service) CurrentUser(ctx context.Context, bearer string) (*User, *AccessToken, error) {
	token, err := s.tokens.Verify(ctx, bearer)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, unauthenticated("token owner no longer exists")
		}
		return nil, nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return user, token, nil
}

func (s *Service) throttledError(ctx context.Context, key string) error {
	wait, err := s.limiter.AvailableIn(ctx, key)
	if err != nil {
		errutil.LogError(s.logger, "failed to read limiter window", err)
	}
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return FieldError("email", fmt.Sprintf("Too many login attempts. Please try again in %d seconds.", seconds)).Err()
}

func (s *Service) undoHit(ctx context.Context, key string) {
	if err := s.limiter.Undo(ctx, key); err != nil {
		errutil.LogError(s.logger, "failed to retract login attempt", oops.With("key", key).Wrap(err))
	}
}

// upgradeHash rehashes the password when the stored hash uses an outdated
// scheme. Failure is logged and does not fail the login.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "failed to rehash password", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		errutil.LogError(s.logger, "failed to store upgraded password hash", oops.
			With("user_id", user.ID.String()).
			Wrap(err))
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
}
