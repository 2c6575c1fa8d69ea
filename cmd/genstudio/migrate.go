package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/config"
	"github.com/digkill/GenStudio/internal/database"
	"github.com/digkill/GenStudio/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(db *sqlx.DB, log *zap.Logger) error {
				return database.MigrateUp(db, log)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down N",
		Short: "Roll back N migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil || steps <= 0 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			return withDatabase(cmd.Context(), func(db *sqlx.DB, log *zap.Logger) error {
				return database.MigrateDown(db, steps, log)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(db *sqlx.DB, _ *zap.Logger) error {
				v, dirty, applied, err := database.MigrationStatus(db)
				if err != nil {
					return err
				}
				if !applied {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d, dirty %t\n", v, dirty)
				return nil
			})
		},
	})
	return cmd
}

func withDatabase(ctx context.Context, fn func(*sqlx.DB, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dsn, err := config.LoadDatabaseDSN(configFile)
	if err != nil {
		return err
	}
	log, err := logger.New("info", "console", "")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, log)
}
