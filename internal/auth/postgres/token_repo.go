// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
)

const tokenColumns = `id, user_id, label, secret_hash, last_used_at, created_at`

// AccessTokenRepository implements auth.AccessTokenRepository using PostgreSQL.
type AccessTokenRepository struct {
	db DB
}

// NewAccessTokenRepository creates a new AccessTokenRepository.
func NewAccessTokenRepository(db DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// Create stores a new access token.
func (r *AccessTokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO access_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Label,
		token.SecretHash,
		token.LastUsedAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").
			With("operation", "insert access_token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a token by its ID.
func (r *AccessTokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.AccessToken, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE id = $1`, id.String())

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_ID_FAILED").
			With("operation", "get token by id").
			With("id", id.String()).
			Wrap(err)
	}
	return token, nil
}

// ListByUser retrieves all tokens for a user, oldest first.
func (r *AccessTokenRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.AccessToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("operation", "list tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

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
			With("operation", "iterate tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tokens, nil
}

// CountByUser returns the number of tokens owned by a user.
func (r *AccessTokenRepository) CountByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM access_tokens WHERE user_id = $1`,
		userID.String()).Scan(&count)
	if err != nil {
		return 0, oops.Code("TOKEN_COUNT_QUERY_FAILED").
			With("operation", "count tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return count, nil
}

// TouchLastUsed records when a token was last presented.
func (r *AccessTokenRepository) TouchLastUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE access_tokens SET last_used_at = $2 WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("TOKEN_TOUCH_FAILED").
			With("operation", "update last_used_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a token by ID.
func (r *AccessTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete access_token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every token for a user and returns the count.
func (r *AccessTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_BY_USER_FAILED").
			With("operation", "delete access_tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into an AccessToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.AccessToken, error) {
	var (
		idStr, userIDStr string
		token            auth.AccessToken
		lastUsedAt       *time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &token.Label, &token.SecretHash, &lastUsedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan access_token").
			Wrap(err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	token.CreatedAt = token.CreatedAt.UTC()
	if lastUsedAt != nil {
		t := lastUsedAt.UTC()
		token.LastUsedAt = &t
	}
	return &token, nil
}

// Compile-time interface check.
var _ auth.AccessTokenRepository = (*AccessTokenRepository)(nil)
