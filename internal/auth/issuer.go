// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/pkg/errutil"
)

// IssuedToken pairs a stored token with the bearer value returned to the
// client. Plaintext is only available at issue time.
type IssuedToken struct {
	Token     *AccessToken
	Plaintext string
}

// TokenIssuer mints, verifies and revokes bearer tokens.
type TokenIssuer struct {
	tokens  AccessTokenRepository
	logger  *slog.Logger
	metrics *Metrics
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(tokens AccessTokenRepository) (*TokenIssuer, error) {
	return NewTokenIssuerWithLogger(tokens, slog.Default())
}

// NewTokenIssuerWithLogger creates a TokenIssuer that logs through logger.
func NewTokenIssuerWithLogger(tokens AccessTokenRepository, logger *slog.Logger) (*TokenIssuer, error) {
	if tokens == nil {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").Errorf("token repository is required")
	}
	if logger == nil {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").Errorf("logger is required")
	}
	return &TokenIssuer{tokens: tokens, logger: logger}, nil
}

// SetMetrics attaches counters. Passing nil disables them.
func (i *TokenIssuer) SetMetrics(m *Metrics) {
	i.metrics = m
}

// Issue creates a token for userID and returns its bearer value.
func (i *TokenIssuer) Issue(ctx context.Context, userID ulid.ULID, label string) (*IssuedToken, error) {
	secret, hash, err := GenerateTokenSecret()
	if err != nil {
		return nil, err
	}

	token, err := NewAccessToken(userID, label, hash)
	if err != nil {
		return nil, err
	}

	if err := i.tokens.Create(ctx, token); err != nil {
		return nil, oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "create token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	i.metrics.tokensIssued(1)
	return &IssuedToken{Token: token, Plaintext: FormatBearer(token.ID, secret)}, nil
}

// Verify resolves a bearer value to its stored token. Absent, malformed,
// unknown and mismatched values all yield AUTH_UNAUTHENTICATED.
func (i *TokenIssuer) Verify(ctx context.Context, bearer string) (*AccessToken, error) {
	id, secret, ok := ParseBearer(bearer)
	if !ok {
		return nil, unauthenticated("malformed bearer token")
	}

	token, err := i.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticated("unknown bearer token")
		}
		return nil, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "get token by id").
			With("token_id", id.String()).
			Wrap(err)
	}

	if !VerifyTokenSecret(secret, token.SecretHash) {
		return nil, unauthenticated("bearer token secret mismatch")
	}

	now := time.Now().UTC()
	if err := i.tokens.TouchLastUsed(ctx, token.ID, now); err != nil {
		errutil.LogError(i.logger, "failed to record token use", oops.
			With("token_id", token.ID.String()).
			Wrap(err))
	} else {
		token.LastUsedAt = &now
	}

	return token, nil
}

// Revoke deletes one token. Revoking a token that no longer exists succeeds.
func (i *TokenIssuer) Revoke(ctx context.Context, tokenID ulid.ULID) error {
	if err := i.tokens.Delete(ctx, tokenID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "delete token").
			With("token_id", tokenID.String()).
			Wrap(err)
	}
	i.metrics.tokensRevoked(1)
	return nil
}

// RevokeAll deletes every token owned by userID and returns the count removed.
func (i *TokenIssuer) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := i.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "delete tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	i.metrics.tokensRevoked(n)
	return n, nil
}

// Count returns the number of live tokens owned by userID.
func (i *TokenIssuer) Count(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := i.tokens.CountByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("TOKEN_COUNT_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return n, nil
}

// List returns the live tokens owned by userID, oldest first.
func (i *TokenIssuer) List(ctx context.Context, userID ulid.ULID) ([]*AccessToken, error) {
	tokens, err := i.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return tokens, nil
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Errorf("%s", MsgUnauthenticated)
}
