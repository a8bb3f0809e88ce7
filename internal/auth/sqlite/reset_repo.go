// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository using SQLite.
type PasswordResetRepository struct {
	db DB
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(db DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores the reset for its email, replacing any earlier one.
func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_resets (email, token_hash, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET token_hash = excluded.token_hash, created_at = excluded.created_at
	`, reset.Email, reset.TokenHash, toMicros(reset.CreatedAt))
	if err != nil {
		return oops.Code("RESET_UPSERT_FAILED").
			With("email", reset.Email).
			Wrap(err)
	}
	return nil
}

// GetByEmail retrieves the live reset for an email.
func (r *PasswordResetRepository) GetByEmail(ctx context.Context, email string) (*auth.PasswordReset, error) {
	var (
		reset   auth.PasswordReset
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT email, token_hash, created_at FROM password_resets WHERE email = ?`, email).
		Scan(&reset.Email, &reset.TokenHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").
			With("email", email).
			Wrap(err)
	}
	reset.CreatedAt = fromMicros(created)
	return &reset, nil
}

// Consume deletes the reset only while it still carries tokenHash.
func (r *PasswordResetRepository) Consume(ctx context.Context, email, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE email = ? AND token_hash = ?`, email, tokenHash)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("email", email).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, oops.Code("SQLITE_ROWS_AFFECTED_FAILED").Wrap(err)
	}
	return n == 1, nil
}

// DeleteByEmail removes the reset for an email, if any.
func (r *PasswordResetRepository) DeleteByEmail(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE email = ?`, email); err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// DeleteCreatedBefore removes resets created before cutoff and returns the count.
func (r *PasswordResetRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE created_at < ?`, toMicros(cutoff))
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("SQLITE_ROWS_AFFECTED_FAILED").Wrap(err)
	}
	return n, nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
