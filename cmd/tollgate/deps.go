// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/httpapi"
	"github.com/tollgate/tollgate/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the credential store.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// LimiterFactory creates the login attempt limiter.
	// Default: newLimiter
	LimiterFactory func(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*LimiterHandle, error)

	// MailerFactory creates the reset link sender.
	// Default: newMailer
	MailerFactory func(cfg *config.Config, logger *slog.Logger) (auth.ResetLinkSender, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checks map[string]observability.ReadinessCheck, logger *slog.Logger) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.New
	HTTPServerFactory func(opts httpapi.Options) (HTTPServer, error)
}

// Backend is an opened credential store.
type Backend struct {
	Users  auth.UserRepository
	Tokens auth.AccessTokenRepository
	Resets auth.PasswordResetRepository
	// Ready reports whether the store still answers.
	Ready observability.ReadinessCheck
	Close func()
}

// LimiterHandle owns a login attempt limiter and its connections.
type LimiterHandle struct {
	Limiter auth.AttemptLimiter
	// Ready is nil for limiters without an external dependency.
	Ready observability.ReadinessCheck
	Close func() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registerer() prometheus.Registerer
	Metrics() *observability.Metrics
}

// HTTPServer interface wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = openBackend
	}
	if out.LimiterFactory == nil {
		out.LimiterFactory = newLimiter
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checks map[string]observability.ReadinessCheck, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checks, logger)
		}
	}
	if out.HTTPServerFactory == nil {
		out.HTTPServerFactory = func(opts httpapi.Options) (HTTPServer, error) {
			return httpapi.New(opts)
		}
	}
	return &out
}
