// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/config"
)

// NewAuthCmd creates the auth maintenance subcommand.
func NewAuthCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication maintenance tasks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-resets",
		Short: "Delete expired password reset tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			n, err := clearResets(cmd.Context(), cfg, logger, openBackend)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d expired password reset token(s)\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tokens EMAIL",
		Short: "List the bearer tokens of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return listTokens(cmd.Context(), cmd.OutOrStdout(), cfg, setupLogger(cfg), openBackend, args[0])
		},
	})

	return cmd
}

type backendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

func clearResets(ctx context.Context, cfg *config.Config, logger *slog.Logger, open backendFactory) (int64, error) {
	backend, err := open(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer backend.Close()

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return 0, err
	}
	hasher := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	resets, err := auth.NewPasswordResetServiceWithLogger(backend.Users, backend.Resets, hasher, mailer, logger,
		auth.WithResetTTL(cfg.Auth.ResetTokenTTL))
	if err != nil {
		return 0, err
	}
	return resets.PruneExpired(ctx)
}

func listTokens(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger, open backendFactory, email string) error {
	backend, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	user, err := backend.Users.GetByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return oops.With("email", email).Wrap(err)
	}
	issuer, err := auth.NewTokenIssuerWithLogger(backend.Tokens, logger)
	if err != nil {
		return err
	}
	tokens, err := issuer.List(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		_, err = fmt.Fprintf(w, "No tokens for %s\n", user.Email)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tCREATED\tLAST USED")
	for _, tok := range tokens {
		lastUsed := "never"
		if tok.LastUsedAt != nil {
			lastUsed = tok.LastUsedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tok.ID, tok.Label, tok.CreatedAt.UTC().Format(time.RFC3339), lastUsed)
	}
	return tw.Flush()
}
