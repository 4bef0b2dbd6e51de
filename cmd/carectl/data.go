package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"carecircle/internal/service"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// the root command already migrated
			fmt.Fprintf(cmd.OutOrStdout(), "Database (%s) is up to date\n", a.cfg.DatabaseType)
			return nil
		},
	}
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create a demo care manager with seniors and care records",
		RunE: func(cmd *cobra.Command, args []string) error {
			seeded, err := service.NewSeedService(a.db, a.logger).Seed(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !seeded {
				fmt.Fprintln(out, "Database already has users, nothing seeded")
				return nil
			}
			fmt.Fprintf(out, "Seeded demo data. Log in as %s / %s\n", service.DemoEmail, service.DemoPassword)
			return nil
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			if err := service.NewBackupService(a.db, a.logger).Export(cmd.Context(), output); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s (%.2f MB)\n", output, float64(info.Size())/1024/1024)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func importCmd(a *app) *cobra.Command {
	var (
		input      string
		clearFirst bool
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file: %w", err)
			}
			backups := service.NewBackupService(a.db, a.logger)

			if clearFirst {
				if !yes && !confirm(cmd, "WARNING: This will delete all existing data. Type 'yes' to confirm: ") {
					fmt.Fprintln(cmd.OutOrStdout(), "Import cancelled")
					return nil
				}
				if err := backups.Clear(cmd.Context()); err != nil {
					return err
				}
			}

			if err := backups.Import(cmd.Context(), input); err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Import complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file path")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Delete existing data before import (destructive)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.MarkFlagRequired("input")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}
