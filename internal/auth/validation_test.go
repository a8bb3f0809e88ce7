// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/pkg/errutil"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"  padded@example.com  ", true},
		{"", false},
		{"no-at-sign", false},
		{"@example.com", false},
		{"user@", false},
		{"Test User <test@example.com>", false},
		{"two@@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.valid, auth.ValidEmail(tt.input))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("empty error returns nil Err", func(t *testing.T) {
		v := auth.NewValidationError()
		assert.True(t, v.Empty())
		assert.NoError(t, v.Err())
	})

	t.Run("single message", func(t *testing.T) {
		err := auth.FieldError("email", "The email field is required.").Err()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		assert.Equal(t, "The email field is required.", errorMessage(t, err))
	})

	t.Run("counts remaining messages", func(t *testing.T) {
		v := auth.NewValidationError()
		v.Add("name", "The name field is required.")
		v.Add("email", "The email field is required.")
		assert.Equal(t, "The name field is required. (and 1 more error)", v.Error())

		v.Add("password", "The password field is required.")
		assert.Equal(t, "The name field is required. (and 2 more errors)", v.Error())
	})

	t.Run("first message follows insertion order", func(t *testing.T) {
		v := auth.NewValidationError()
		v.Add("password", "short")
		v.Add("email", "bad")
		v.Add("password", "mismatch")
		assert.Equal(t, "short (and 2 more errors)", v.Error())
		assert.Equal(t, []string{"short", "mismatch"}, v.Fields()["password"])
	})

	t.Run("Fields returns a copy", func(t *testing.T) {
		v := auth.FieldError("email", "bad")
		fields := v.Fields()
		fields["email"][0] = "changed"
		assert.Equal(t, "bad", v.Fields()["email"][0])
	})

	t.Run("extractable from wrapped error", func(t *testing.T) {
		err := auth.FieldError("email", "bad").Err()
		v, ok := auth.AsValidationError(err)
		require.True(t, ok)
		assert.True(t, v.Has("email"))
		assert.False(t, v.Has("password"))
	})

	t.Run("not extractable from unrelated error", func(t *testing.T) {
		_, ok := auth.AsValidationError(errors.New("boom"))
		assert.False(t, ok)
	})
}

// errorMessage returns the ValidationError text from a wrapped error.
func errorMessage(t *testing.T, err error) string {
	t.Helper()
	v, ok := auth.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	return v.Error()
}

// fieldMessages returns the messages recorded for field in a wrapped
// validation error.
func fieldMessages(t *testing.T, err error, field string) []string {
	t.Helper()
	v, ok := auth.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	return v.Fields()[field]
}
