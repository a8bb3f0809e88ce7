// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Field length limits.
const (
	MinPasswordLength = 8
	MaxNameLength     = 255
	MaxEmailLength    = 255
)

// ValidationError collects field-level validation failures. Fields keep the
// order in which their first error was added.
type ValidationError struct {
	order  []string
	fields map[string][]string
}

// NewValidationError creates an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{fields: make(map[string][]string)}
}

// FieldError creates a ValidationError holding a single message for field.
func FieldError(field, msg string) *ValidationError {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

// Add records msg against field.
func (v *ValidationError) Add(field, msg string) {
	if _, ok := v.fields[field]; !ok {
		v.order = append(v.order, field)
	}
	v.fields[field] = append(v.fields[field], msg)
}

// Has reports whether field has at least one error.
func (v *ValidationError) Has(field string) bool {
	return len(v.fields[field]) > 0
}

// Empty reports whether no errors were recorded.
func (v *ValidationError) Empty() bool {
	return len(v.order) == 0
}

// Fields returns a copy of the per-field messages.
func (v *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(v.fields))
	for k, msgs := range v.fields {
		out[k] = append([]string(nil), msgs...)
	}
	return out
}

// Error returns the first message, followed by a count of the remaining ones.
func (v *ValidationError) Error() string {
	if v.Empty() {
		return "validation failed"
	}
	first := v.fields[v.order[0]][0]
	total := 0
	for _, msgs := range v.fields {
		total += len(msgs)
	}
	switch rest := total - 1; rest {
	case 0:
		return first
	case 1:
		return first + " (and 1 more error)"
	default:
		return fmt.Sprintf("%s (and %d more errors)", first, rest)
	}
}

// Err returns nil when no errors were recorded, otherwise the ValidationError
// wrapped with the VALIDATION_FAILED code.
func (v *ValidationError) Err() error {
	if v.Empty() {
		return nil
	}
	return oops.Code(CodeValidation).With("fields", v.order).Wrap(v)
}

// AsValidationError extracts a ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func msgRequired(field string) string {
	return fmt.Sprintf("The %s field is required.", field)
}

func msgMaxLength(field string, limit int) string {
	return fmt.Sprintf("The %s field must not be greater than %d characters.", field, limit)
}

func (v *ValidationError) requireString(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.Add(field, msgRequired(field))
		return false
	}
	return true
}

func (v *ValidationError) checkEmail(raw string) {
	if !v.requireString("email", raw) {
		return
	}
	if utf8.RuneCountInString(raw) > MaxEmailLength {
		v.Add("email", msgMaxLength("email", MaxEmailLength))
		return
	}
	if !ValidEmail(raw) {
		v.Add("email", "The email field must be a valid email address.")
	}
}

func (v *ValidationError) checkNewPassword(password, confirmation string) {
	if password == "" {
		v.Add("password", msgRequired("password"))
		return
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		v.Add("password", fmt.Sprintf("The password field must be at least %d characters.", MinPasswordLength))
	}
	if password != confirmation {
		v.Add("password", "The password field confirmation does not match.")
	}
}

// ValidEmail reports whether s is a bare RFC 5322 address with a domain part.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1
}
