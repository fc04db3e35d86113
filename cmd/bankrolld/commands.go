package main

import (
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bankroll/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/spf13/cobra"
)

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePostgres(cfg); err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return migrations.Up(cfg.DatabaseURL, logger)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePostgres(cfg); err != nil {
				return err
			}
			steps, err := cmd.Flags().GetInt(flagSteps)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return migrations.Down(cfg.DatabaseURL, steps, logger)
		},
	}
	down.Flags().Int(flagSteps, 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePostgres(cfg); err != nil {
				return err
			}
			current, err := migrations.CurrentStatus(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if !current.Applied {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", current.Version, current.Dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func newPromoteAdminCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "promote-admin <email>",
		Short: "Give the admin role to a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			gormDB, cleanup, driver, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := prepareSchema(gormDB, driver, cfg.DatabaseURL, logger); err != nil {
				return err
			}

			service, err := access.NewService(gormstore.New(gormDB).Access(), func() time.Time { return time.Now().UTC() })
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd.Context(), defaultRequestTimeout)
			defer cancel()
			user, err := service.PromoteAdmin(ctx, args[0])
			if err != nil {
				return fmt.Errorf("promote %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", user.Email, user.ID)
			return nil
		},
	}
}

func requirePostgres(cfg *runtimeConfig) error {
	if !isPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("migrations apply to postgres only; sqlite schemas are migrated on start")
	}
	return nil
}
