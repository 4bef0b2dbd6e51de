package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carecircle/internal/config"
	"carecircle/internal/database"
)

var Version = "dev"

// app holds what every subcommand needs once the root command has run
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "carectl",
		Short:         "CareCircle administration tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				os.Setenv("CARECIRCLE_CONFIG", configPath)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := config.NewLogger(level)
			if err != nil {
				return err
			}

			db, err := database.InitializeWithConfig(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			// keep the schema current before any command touches it
			if err := db.RunMigrations(cmd.Context(), cfg.MigrationsPath, logger); err != nil {
				db.Close()
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			a.cfg, a.logger, a.db = cfg, logger, db
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.db != nil {
				a.db.Close()
			}
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CARECIRCLE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(seedCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(importCmd(a))
	rootCmd.AddCommand(userCmd(a))
	rootCmd.AddCommand(seniorCmd(a))
	rootCmd.AddCommand(dashboardCmd(a))
	return rootCmd
}
