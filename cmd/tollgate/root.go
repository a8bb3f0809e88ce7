// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/xdg"
)

const serviceName = "tollgate"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the Tollgate CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "tollgate",
		Short: "Tollgate - email and password authentication API",
		Long: `Tollgate serves registration, login, logout and password reset
over a JSON API backed by opaque bearer tokens.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/tollgate/config.yaml)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file merged under the process environment")
	config.BindFlags(pf)

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigrateCmd(flags))
	cmd.AddCommand(NewAuthCmd(flags))
	cmd.AddCommand(NewConfigCmd(flags))

	return cmd
}

// loadConfig resolves the configuration for cmd. An explicit --config must
// exist; the XDG default is optional.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	opts := config.LoadOptions{
		File:         flags.configFile,
		FileRequired: flags.configFile != "",
		EnvFile:      flags.envFile,
		Flags:        cmd.Flags(),
	}
	if opts.File == "" {
		if path, err := xdg.ConfigFile(); err == nil {
			opts.File = path
		}
	}
	return config.Load(opts)
}

// setupLogger installs the process-wide logger described by cfg.
func setupLogger(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  os.Stderr,
	})
}
