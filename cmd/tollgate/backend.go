// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/auth/postgres"
	"github.com/tollgate/tollgate/internal/auth/redis"
	"github.com/tollgate/tollgate/internal/auth/sqlite"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/mail"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/internal/xdg"
)

// openBackend connects to the database named by cfg.Database.URL.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	dialect, migrateURL, err := store.DialectFromURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case store.DialectPostgres:
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.Connect(ctx, cfg.Database.URL, opts)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := migrateUp(cfg.Database.URL, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		logger.Info("connected to database", "dialect", string(dialect))
		return &Backend{
			Users:  postgres.NewUserRepository(pool),
			Tokens: postgres.NewAccessTokenRepository(pool),
			Resets: postgres.NewPasswordResetRepository(pool),
			Ready:  pool.Ping,
			Close:  pool.Close,
		}, nil

	case store.DialectSQLite:
		path := sqlitePath(migrateURL)
		if path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return nil, err
			}
		}
		// sqlite.Open always brings the schema up to date.
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened database", "dialect", string(dialect), "path", path)
		return &Backend{
			Users:  sqlite.NewUserRepository(db),
			Tokens: sqlite.NewAccessTokenRepository(db),
			Resets: sqlite.NewPasswordResetRepository(db),
			Ready:  db.PingContext,
			Close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("failed to close database", "error", err)
				}
			},
		}, nil
	}
	return nil, oops.Code("UNSUPPORTED_DATABASE").With("dialect", string(dialect)).Errorf("unsupported database dialect")
}

func sqlitePath(migrateURL string) string {
	return strings.TrimPrefix(migrateURL, "sqlite://")
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL, store.WithMigrationLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	logger.Info("applying migrations", "pending", len(pending))
	return migrator.Up()
}

// newLimiter returns a Redis limiter when a Redis URL is configured and a
// process-local one otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*LimiterHandle, error) {
	if cfg.Redis.URL == "" {
		l := auth.NewMemoryLimiter(auth.MemoryLimiterConfig{
			Window:     cfg.Auth.LoginWindow,
			Registerer: reg,
		})
		return &LimiterHandle{Limiter: l, Close: l.Close}, nil
	}

	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)
	l := redis.NewLimiter(client, redis.Options{Window: cfg.Auth.LoginWindow})
	if err := l.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &LimiterHandle{Limiter: l, Ready: l.Ping, Close: client.Close}, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (auth.ResetLinkSender, error) {
	return mail.Sender(cfg.Mail.Driver, logger, mail.ResendConfig{
		APIKey:     cfg.Mail.ResendAPIKey,
		From:       cfg.Mail.From,
		ResetURL:   cfg.Mail.ResetURL,
		TTLMinutes: int(cfg.Auth.ResetTokenTTL.Minutes()),
	})
}
