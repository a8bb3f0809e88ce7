// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable that maps onto Config.
const EnvPrefix = "TOLLGATE_"

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// File is the YAML config path. A missing file is only an error when
	// FileRequired is set.
	File         string
	FileRequired bool
	// EnvFile is an optional dotenv file. Its values never override
	// variables already present in the environment.
	EnvFile string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
	// Flags supplies overrides for flags the user set explicitly.
	Flags *pflag.FlagSet
}

// wellKnownEnv are conventional unprefixed variables honoured for
// platform compatibility. Prefixed variables take precedence.
type wellKnownEnv struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":         "http.addr",
	"database-url": "database.url",
	"redis-url":    "redis.url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-addr": "metrics.addr",
	"mail-driver":  "mail.driver",
	"debug":        "app.debug",
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "HTTP listen address")
	fs.String("database-url", "", "database URL (postgres:// or sqlite://)")
	fs.String("redis-url", "", "Redis URL for the shared login limiter")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
	fs.String("metrics-addr", "", "metrics and health listen address")
	fs.String("mail-driver", "", "reset mail driver (log, resend)")
	fs.Bool("debug", false, "expose internal error messages")
}

// Load builds the configuration from defaults and the sources in opts,
// then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if err := loadFile(&cfg, opts); err != nil {
		return nil, err
	}
	environ, err := buildEnviron(opts)
	if err != nil {
		return nil, err
	}
	if err := loadEnv(&cfg, environ); err != nil {
		return nil, err
	}
	if opts.Flags != nil {
		if err := loadFlags(&cfg, opts.Flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(cfg *Config, opts LoadOptions) error {
	if opts.File == "" {
		return nil
	}
	data, err := os.ReadFile(opts.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !opts.FileRequired {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", opts.File).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.With("path", opts.File).Wrap(err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", opts.File).Wrap(err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", opts.File).Wrap(err)
	}
	return nil
}

func buildEnviron(opts LoadOptions) (map[string]string, error) {
	environ := opts.Environ
	if environ == nil {
		environ = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				environ[k] = v
			}
		}
	} else {
		copied := make(map[string]string, len(environ))
		for k, v := range environ {
			copied[k] = v
		}
		environ = copied
	}

	if opts.EnvFile == "" {
		return environ, nil
	}
	dotenv, err := godotenv.Read(opts.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return environ, nil
		}
		return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
	}
	for k, v := range dotenv {
		if _, set := environ[k]; !set {
			environ[k] = v
		}
	}
	return environ, nil
}

func loadEnv(cfg *Config, environ map[string]string) error {
	var known wellKnownEnv
	if err := env.ParseWithOptions(&known, env.Options{Environment: environ}); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	if known.DatabaseURL != "" {
		cfg.Database.URL = known.DatabaseURL
	}
	if known.RedisURL != "" {
		cfg.Redis.URL = known.RedisURL
	}
	if known.ResendAPIKey != "" {
		cfg.Mail.ResendAPIKey = known.ResendAPIKey
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return nil
}

func loadFlags(cfg *Config, fs *pflag.FlagSet) error {
	k := koanf.New(".")
	provider := posflag.ProviderWithFlag(fs, ".", nil, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	return nil
}
