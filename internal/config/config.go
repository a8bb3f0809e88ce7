// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package config loads and validates Tollgate configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML
// config file, a .env file, process environment, then explicitly set
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/internal/xdg"
)

// Config is the complete application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Mail     MailConfig     `yaml:"mail" envPrefix:"MAIL_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// AppConfig holds application-wide switches.
type AppConfig struct {
	Name string `yaml:"name" env:"APP_NAME" jsonschema:"minLength=1"`
	// Debug exposes internal error messages in 500 responses.
	Debug bool `yaml:"debug" env:"APP_DEBUG"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR" jsonschema:"minLength=1"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// CORSOrigins are glob patterns such as "https://*.example.com".
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	// ThrottlePerMinute caps forgot/reset password requests per client IP.
	ThrottlePerMinute int `yaml:"throttle_per_minute" env:"THROTTLE_PER_MINUTE" jsonschema:"minimum=1"`
	// TrustProxy takes the client IP from X-Forwarded-For. Enable only
	// behind a reverse proxy that overwrites the header.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
}

// DatabaseConfig selects the credential store. postgres:// URLs use
// PostgreSQL; sqlite:// and file: URLs use an embedded SQLite database.
type DatabaseConfig struct {
	URL string `yaml:"url" env:"URL" jsonschema:"minLength=1"`
	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig enables the shared login limiter. Empty URL keeps attempts
// in process memory.
type RedisConfig struct {
	URL string `yaml:"url" env:"URL"`
}

// AuthConfig tunes the authentication flows.
type AuthConfig struct {
	MaxLoginAttempts    int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS" jsonschema:"minimum=1"`
	LoginWindow         time.Duration `yaml:"login_window" env:"LOGIN_WINDOW"`
	ResetTokenTTL       time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL"`
	ResetThrottle       time.Duration `yaml:"reset_throttle" env:"RESET_THROTTLE"`
	RevokeTokensOnReset bool          `yaml:"revoke_tokens_on_reset" env:"REVOKE_TOKENS_ON_RESET"`
	Argon2              Argon2Config  `yaml:"argon2" envPrefix:"ARGON2_"`
}

// Argon2Config is the password hashing cost.
type Argon2Config struct {
	Iterations  uint32 `yaml:"iterations" env:"ITERATIONS" jsonschema:"minimum=1"`
	MemoryKiB   uint32 `yaml:"memory_kib" env:"MEMORY_KIB" jsonschema:"minimum=1024"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM" jsonschema:"minimum=1"`
}

// MailConfig selects how reset links are delivered.
type MailConfig struct {
	Driver       string `yaml:"driver" env:"DRIVER" jsonschema:"enum=log,enum=resend"`
	From         string `yaml:"from" env:"FROM"`
	ResetURL     string `yaml:"reset_url" env:"RESET_URL"`
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" env:"FORMAT" jsonschema:"enum=json,enum=text"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the built-in configuration.
func Default() Config {
	dbURL := "sqlite://tollgate.db"
	if path, err := xdg.DatabaseFile(); err == nil {
		dbURL = "sqlite://" + path
	}
	argon := auth.DefaultArgon2Params()

	return Config{
		App: AppConfig{Name: "Tollgate"},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			ThrottlePerMinute: 6,
		},
		Database: DatabaseConfig{URL: dbURL, AutoMigrate: true},
		Auth: AuthConfig{
			MaxLoginAttempts: auth.DefaultMaxLoginAttempts,
			LoginWindow:      auth.DefaultLoginWindow,
			ResetTokenTTL:    auth.DefaultResetTokenTTL,
			ResetThrottle:    auth.DefaultResetThrottle,
			Argon2: Argon2Config{
				Iterations:  argon.Time,
				MemoryKiB:   argon.Memory,
				Parallelism: argon.Threads,
			},
		},
		Mail: MailConfig{Driver: "log", From: "Tollgate <no-reply@localhost>"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if c.HTTP.Addr == "" {
		fail("http.addr", "is required")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		fail("http", "timeouts must be positive")
	}
	if c.HTTP.ThrottlePerMinute < 1 {
		fail("http.throttle_per_minute", "must be at least 1, got %d", c.HTTP.ThrottlePerMinute)
	}
	for _, origin := range c.HTTP.CORSOrigins {
		if _, err := glob.Compile(origin); err != nil {
			fail("http.cors_origins", "invalid pattern %q: %v", origin, err)
		}
	}

	if _, _, err := store.DialectFromURL(c.Database.URL); err != nil {
		fail("database.url", "unsupported database url")
	}
	if c.Redis.URL != "" {
		if u, err := url.Parse(c.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			fail("redis.url", "must be a redis:// or rediss:// url")
		}
	}

	if c.Auth.MaxLoginAttempts < 1 {
		fail("auth.max_login_attempts", "must be at least 1, got %d", c.Auth.MaxLoginAttempts)
	}
	if c.Auth.LoginWindow <= 0 {
		fail("auth.login_window", "must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		fail("auth.reset_token_ttl", "must be positive")
	}
	if c.Auth.ResetThrottle < 0 {
		fail("auth.reset_throttle", "must not be negative")
	}
	if c.Auth.Argon2.Iterations < 1 || c.Auth.Argon2.MemoryKiB < 1024 || c.Auth.Argon2.Parallelism < 1 {
		fail("auth.argon2", "iterations and parallelism must be at least 1 and memory_kib at least 1024")
	}

	switch c.Mail.Driver {
	case "log":
	case "resend":
		if c.Mail.ResendAPIKey == "" {
			fail("mail.resend_api_key", "is required for the resend driver")
		}
		if c.Mail.From == "" {
			fail("mail.from", "is required for the resend driver")
		}
	default:
		fail("mail.driver", "must be log or resend, got %q", c.Mail.Driver)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		fail("log.level", "unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		fail("log.format", "must be json or text, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").With("problems", len(errs)).Wrap(errors.Join(errs...))
	}
	return nil
}

// Argon2Params converts the hashing cost for auth.NewArgon2idHasherWithParams.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Auth.Argon2.Iterations,
		Memory:  c.Auth.Argon2.MemoryKiB,
		Threads: c.Auth.Argon2.Parallelism,
	}
}

// Redacted returns a copy safe to print: secrets and URL passwords are masked.
func (c Config) Redacted() Config {
	if c.Mail.ResendAPIKey != "" {
		c.Mail.ResendAPIKey = logging.Redacted
	}
	c.Database.URL = redactURL(c.Database.URL)
	c.Redis.URL = redactURL(c.Redis.URL)
	c.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	return c
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
