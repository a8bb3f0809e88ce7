// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32        // 32 bytes = 64 hex chars
	DefaultResetTokenTTL = time.Hour // tokens expire after 60 minutes
	DefaultResetThrottle = time.Minute
)

// PasswordReset is the live reset token for an email address. There is at
// most one per email.
type PasswordReset struct {
	Email     string
	TokenHash string
	CreatedAt time.Time
}

// NewPasswordReset creates a PasswordReset for a normalized email.
func NewPasswordReset(email, tokenHash string) (*PasswordReset, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("RESET_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	return &PasswordReset{
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsExpiredAt returns true if the token is older than ttl at time t.
func (r *PasswordReset) IsExpiredAt(t time.Time, ttl time.Duration) bool {
	return t.Sub(r.CreatedAt) > ttl
}

// RecentlyCreatedAt returns true if the token was created less than window before t.
func (r *PasswordReset) RecentlyCreatedAt(t time.Time, window time.Duration) bool {
	return window > 0 && t.Sub(r.CreatedAt) < window
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the user; the hash is stored in the database.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, hashResetToken(token), nil
}

// VerifyResetToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := hashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func hashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Upsert stores the reset for its email, replacing any existing one.
	Upsert(ctx context.Context, reset *PasswordReset) error

	// GetByEmail retrieves the reset for an email.
	// Returns ErrNotFound if none exists.
	GetByEmail(ctx context.Context, email string) (*PasswordReset, error)

	// Consume deletes the reset for email only if its hash equals tokenHash.
	// It reports whether a record was deleted, so at most one caller can
	// consume a given token.
	Consume(ctx context.Context, email, tokenHash string) (bool, error)

	// DeleteByEmail removes the reset for an email. Deleting a missing
	// reset is not an error.
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteCreatedBefore removes resets created before cutoff and returns
	// the count of deleted records.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
