// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package auth provides the email/password authentication domain for Tollgate.
//
// # Domain Types
//
// Domain types (User, AccessToken, PasswordReset) should be created
// using their respective constructors:
//   - NewUser - creates a User with a normalized email and a password hash
//   - NewAccessToken - creates an AccessToken bound to a user and label
//   - NewPasswordReset - creates a PasswordReset keyed by email
//
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, logout and bearer token resolution
//   - TokenIssuer - minting, verifying and revoking bearer tokens
//   - PasswordResetService - password reset request and completion
//
// Services are created with New* constructors that validate dependencies.
//
// # Bearer Tokens
//
// Bearer values have the form "{id}|{secret}". Only the SHA-256 digest of the
// secret is persisted.
package auth
