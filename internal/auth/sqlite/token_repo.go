// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

const tokenColumns = `id, user_id, label, secret_hash, last_used_at, created_at`

// AccessTokenRepository implements auth.AccessTokenRepository using SQLite.
type AccessTokenRepository struct {
	db DB
}

// NewAccessTokenRepository creates a new AccessTokenRepository.
func NewAccessTokenRepository(db DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// Create stores a new access token.
func (r *AccessTokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Label,
		token.SecretHash,
		nullableMicros(token.LastUsedAt),
		toMicros(token.CreatedAt),
	)
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a token by its ID.
func (r *AccessTokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE id = ?`, id.String())

	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_ID_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return token, nil
}

// ListByUser retrieves all tokens for a user, oldest first.
func (r *AccessTokenRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.AccessToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*auth.AccessToken
	for rows.Next() {
		token, scanErr := scanToken(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tokens, nil
}

// CountByUser returns the number of tokens owned by a user.
func (r *AccessTokenRepository) CountByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_tokens WHERE user_id = ?`,
		userID.String()).Scan(&count)
	if err != nil {
		return 0, oops.Code("TOKEN_COUNT_QUERY_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return count, nil
}

// TouchLastUsed records when a token was last presented.
func (r *AccessTokenRepository) TouchLastUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE access_tokens SET last_used_at = ? WHERE id = ?`, toMicros(at), id.String())
	if err != nil {
		return oops.Code("TOKEN_TOUCH_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return requireOneRow(result, "TOKEN_NOT_FOUND", id)
}

// Delete removes a token by ID.
func (r *AccessTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE id = ?`, id.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return requireOneRow(result, "TOKEN_NOT_FOUND", id)
}

// DeleteByUser removes every token for a user and returns the count.
func (r *AccessTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = ?`, userID.String())
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_BY_USER_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("SQLITE_ROWS_AFFECTED_FAILED").Wrap(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*auth.AccessToken, error) {
	var (
		idStr, userIDStr string
		token            auth.AccessToken
		lastUsed         sql.NullInt64
		created          int64
	)
	err := row.Scan(&idStr, &userIDStr, &token.Label, &token.SecretHash, &lastUsed, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").Wrap(err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	token.LastUsedAt = timePtr(lastUsed)
	token.CreatedAt = fromMicros(created)
	return &token, nil
}

// Compile-time interface check.
var _ auth.AccessTokenRepository = (*AccessTokenRepository)(nil)
