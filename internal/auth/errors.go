// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by a UserRepository when the email already
// belongs to another user.
var ErrEmailTaken = errors.New("email already taken")

// Error codes surfaced to the transport layer.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeUnauthenticated   = "AUTH_UNAUTHENTICATED"
	CodeResetUserNotFound = "RESET_USER_NOT_FOUND"
	CodeResetTokenInvalid = "RESET_TOKEN_INVALID"
	CodeResetThrottled    = "RESET_THROTTLED"
)

// User-facing messages.
const (
	MsgInvalidCredentials = "These credentials do not match our records."
	MsgResetLinkSent      = "We have emailed your password reset link."
	MsgResetUserNotFound  = "We can't find a user with that email address."
	MsgResetTokenInvalid  = "This password reset token is invalid."
	MsgResetThrottled     = "Please wait before retrying."
	MsgPasswordReset      = "Your password has been reset."
	MsgUnauthenticated    = "Unauthenticated."
)
