// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/httpapi"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API. The credential store is chosen by database.url
(PostgreSQL or SQLite) and login attempts are counted in Redis when
redis.url is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runServeWithDeps(ctx, cfg, logger, nil); err != nil {
				errutil.LogError(logger, "server failed", err)
				return err
			}
			return nil
		},
	}
}

// runServeWithDeps runs the API until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	deps = deps.withDefaults()

	logger.Info("starting tollgate",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"mail_driver", cfg.Mail.Driver,
	)

	checks := make(map[string]observability.ReadinessCheck)
	var (
		obsServer ObservabilityServer
		reg       prometheus.Registerer = prometheus.NewRegistry()
		httpStats *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, checks, logger)
		reg = obsServer.Registerer()
		httpStats = obsServer.Metrics()
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer backend.Close()
	checks["database"] = backend.Ready

	limiter, err := deps.LimiterFactory(ctx, cfg, reg)
	if err != nil {
		return oops.With("operation", "create login limiter").Wrap(err)
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Warn("failed to close limiter", "error", err)
		}
	}()
	if limiter.Ready != nil {
		checks["limiter"] = limiter.Ready
	}

	mailer, err := deps.MailerFactory(cfg, logger)
	if err != nil {
		return oops.With("operation", "create mailer").Wrap(err)
	}

	authMetrics := auth.NewMetrics(reg)
	issuer, err := auth.NewTokenIssuerWithLogger(backend.Tokens, logger)
	if err != nil {
		return err
	}
	issuer.SetMetrics(authMetrics)

	hasher := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	svc, err := auth.NewServiceWithLogger(backend.Users, issuer, hasher, limiter.Limiter, logger,
		auth.WithMaxLoginAttempts(cfg.Auth.MaxLoginAttempts),
		auth.WithMetrics(authMetrics),
	)
	if err != nil {
		return err
	}

	resetOpts := []auth.ResetOption{
		auth.WithResetTTL(cfg.Auth.ResetTokenTTL),
		auth.WithResetThrottle(cfg.Auth.ResetThrottle),
		auth.WithResetMetrics(authMetrics),
		auth.WithResetEventSink(auth.LogEventSink{Logger: logger}),
	}
	if cfg.Auth.RevokeTokensOnReset {
		resetOpts = append(resetOpts, auth.WithTokenRevocation(issuer))
	}
	resets, err := auth.NewPasswordResetServiceWithLogger(backend.Users, backend.Resets, hasher, mailer, logger, resetOpts...)
	if err != nil {
		return err
	}

	api, err := deps.HTTPServerFactory(httpapi.Options{
		Auth:              svc,
		Resets:            resets,
		Logger:            logger,
		Metrics:           httpStats,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		ThrottlePerMinute: cfg.HTTP.ThrottlePerMinute,
		TrustProxy:        cfg.HTTP.TrustProxy,
		Debug:             cfg.App.Debug,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiErrChan := make(chan error, 1)
	go func() {
		apiErrChan <- api.Start(cfg.HTTP.Addr)
		close(apiErrChan)
	}()

	var serveErr error
	select {
	case err := <-apiErrChan:
		serveErr = err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
