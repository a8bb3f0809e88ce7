// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	db DB
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(db DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores the reset for its email, replacing any earlier one.
func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_resets (email, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at
	`, reset.Email, reset.TokenHash, reset.CreatedAt)
	if err != nil {
		return oops.Code("RESET_UPSERT_FAILED").
			With("operation", "upsert password_reset").
			With("email", reset.Email).
			Wrap(err)
	}
	return nil
}

// GetByEmail retrieves the live reset for an email.
func (r *PasswordResetRepository) GetByEmail(ctx context.Context, email string) (*auth.PasswordReset, error) {
	row := r.db.QueryRow(ctx, `
		SELECT email, token_hash, created_at
		FROM password_resets
		WHERE email = $1
	`, email)

	var reset auth.PasswordReset
	err := row.Scan(&reset.Email, &reset.TokenHash, &reset.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").
			With("operation", "get password_reset by email").
			With("email", email).
			Wrap(err)
	}
	reset.CreatedAt = reset.CreatedAt.UTC()
	return &reset, nil
}

// Consume deletes the reset only while it still carries tokenHash.
func (r *PasswordResetRepository) Consume(ctx context.Context, email, tokenHash string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM password_resets WHERE email = $1 AND token_hash = $2
	`, email, tokenHash)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume password_reset").
			With("email", email).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteByEmail removes the reset for an email.
func (r *PasswordResetRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, email)
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("email", email).
			Wrap(err)
	}
	// No ErrNotFound when nothing matched; an absent reset is a valid state.
	return nil
}

// DeleteCreatedBefore removes resets created before cutoff and returns the count.
func (r *PasswordResetRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password_resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
