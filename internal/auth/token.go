// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration.
const (
	TokenSecretBytes = 40 // 40 bytes = 80 hex chars
	DefaultTokenName = "api-token"
	TokenType        = "Bearer"
	bearerSeparator  = "|"
)

// AccessToken is a persisted bearer credential. The plaintext secret is never
// stored; SecretHash holds its SHA-256 hex digest.
type AccessToken struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Label      string
	SecretHash string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// NewAccessToken creates a validated AccessToken instance.
func NewAccessToken(userID ulid.ULID, label, secretHash string) (*AccessToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if strings.TrimSpace(label) == "" {
		return nil, oops.Code("TOKEN_INVALID_LABEL").Errorf("token label cannot be empty")
	}
	if secretHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("secret hash cannot be empty")
	}

	return &AccessToken{
		ID:         ulid.Make(),
		UserID:     userID,
		Label:      label,
		SecretHash: secretHash,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GenerateTokenSecret creates a secure random secret and its hash.
// Returns (plaintext_secret, sha256_hash, error).
func GenerateTokenSecret() (secret, hash string, err error) {
	buf := make([]byte, TokenSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenSecretBytes).
			Wrap(err)
	}

	secret = hex.EncodeToString(buf)
	return secret, HashTokenSecret(secret), nil
}

// HashTokenSecret computes the SHA256 hash of a token secret.
func HashTokenSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// VerifyTokenSecret checks if the plaintext secret matches the stored hash
// in constant time.
func VerifyTokenSecret(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	computed := HashTokenSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// FormatBearer joins a token ID and plaintext secret into the value handed to clients.
func FormatBearer(id ulid.ULID, secret string) string {
	return id.String() + bearerSeparator + secret
}

// ParseBearer splits a "{id}|{secret}" bearer value. It reports false when the
// value is malformed.
func ParseBearer(bearer string) (ulid.ULID, string, bool) {
	idPart, secret, found := strings.Cut(bearer, bearerSeparator)
	if !found || idPart == "" || secret == "" {
		return ulid.ULID{}, "", false
	}
	id, err := ulid.ParseStrict(idPart)
	if err != nil {
		return ulid.ULID{}, "", false
	}
	return id, secret, true
}

// AccessTokenRepository manages bearer token persistence.
type AccessTokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *AccessToken) error

	// GetByID retrieves a token by its ID.
	GetByID(ctx context.Context, id ulid.ULID) (*AccessToken, error)

	// ListByUser retrieves all tokens owned by a user, oldest first.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*AccessToken, error)

	// CountByUser returns the number of tokens owned by a user.
	CountByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// TouchLastUsed records the time a token was last presented.
	TouchLastUsed(ctx context.Context, id ulid.ULID, at time.Time) error

	// Delete removes a token by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all tokens for a user and returns the count removed.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
