package app

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-sync-server/database"
	"github.com/stacklok/catalog-sync-server/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, "apply pending migrations to", func(connStr string) error {
				return database.MigrateUp(connStr)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("num-steps")
			return runMigrate(cmd, fmt.Sprintf("revert %s of", describeSteps(steps)), func(connStr string) error {
				return database.MigrateDown(connStr, steps)
			})
		},
	}
	down.Flags().IntP("num-steps", "n", 1, "Number of migrations to revert (0 = all)")

	cmd.AddCommand(up, down)
	return cmd
}

func describeSteps(steps int) string {
	if steps <= 0 {
		return "all migrations"
	}
	if steps == 1 {
		return "1 migration"
	}
	return fmt.Sprintf("%d migrations", steps)
}

func runMigrate(cmd *cobra.Command, action string, apply func(connStr string) error) error {
	yes, _ := cmd.Flags().GetBool("yes")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	connStr, err := cfg.Database.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	if !yes {
		confirmed, err := confirm(cmd, fmt.Sprintf("About to %s %s@%s:%d/%s. Continue? (yes/no): ",
			action, cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
		if err != nil {
			return err
		}
		if !confirmed {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	if err := apply(connStr); err != nil {
		return err
	}

	logVersion(cfg.Database)
	return nil
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	if _, err := fmt.Fprint(cmd.OutOrStdout(), prompt); err != nil {
		return false, err
	}
	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y", nil
}

func logVersion(dbCfg *config.DatabaseConfig) {
	connStr, err := dbCfg.GetConnectionString()
	if err != nil {
		return
	}
	version, dirty, err := database.CurrentVersion(connStr)
	switch {
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Migrations applied successfully", "version", version)
	}
}
