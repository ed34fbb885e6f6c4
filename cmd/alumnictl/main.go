// Package main is the operator CLI: schema migration, staff accounts and orphaned-payment follow-up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/config"
	"github.com/alumni-connect/backend/internal/auth"
	"github.com/alumni-connect/backend/internal/ledger"
	"github.com/alumni-connect/backend/internal/tokens"
	"github.com/alumni-connect/backend/pkg/database"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "alumnictl",
		Short:         "Operator tools for the alumni events backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(tokensCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// connect loads config and opens the pool. The caller closes it.
func connect(ctx context.Context) (*pgxpool.Pool, *zap.Logger, error) {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	var password, name, role string
	add := &cobra.Command{
		Use:   "add [email]",
		Short: "Create an admin or volunteer account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			u, err := auth.CreateUser(ctx, auth.NewRepository(pool), args[0], password, name, role)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) %s\n", u.Email, u.Role, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "initial password (min 8 characters)")
	add.Flags().StringVar(&name, "name", "", "full name")
	add.Flags().StringVar(&role, "role", "admin", "admin or volunteer")
	_ = add.MarkFlagRequired("password")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func orphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Inspect captured payments that have no token",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print orphaned registration payments as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			list, err := ledger.NewRepository(pool).ListOrphans(ctx)
			if err != nil {
				return fmt.Errorf("list orphans: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, tx := range list {
				if err := enc.Encode(tx); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Token operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue [transaction-id]",
		Short: "Issue the token for a captured transaction that has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}
			ctx := cmd.Context()
			pool, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			issuer := tokens.NewIssuer(tokens.NewRepository(pool), ledger.NewRepository(pool), logger)
			tok, err := issuer.IssueForTransaction(ctx, txID)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token %s scan code %s\n", tok.ID, tok.ScanCode)
			return nil
		},
	})
	return cmd
}
