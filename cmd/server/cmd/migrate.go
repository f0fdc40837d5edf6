package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smart-navigator/server/internal/config"
	"github.com/smart-navigator/server/internal/storage/postgres"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down [steps]]",
	Short: "Run database schema migrations",
	Long: `Apply or roll back database schema migrations.

Examples:
  # Apply all pending migrations
  navigator migrate up

  # Roll back the last migration
  navigator migrate down

  # Roll back the last two migrations
  navigator migrate down 2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "path", postgres.DefaultMigrationsPath, "migrations directory")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	switch args[0] {
	case "up":
		if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info().Msg("migrations applied")
		return nil
	case "down":
		steps := 1
		if len(args) == 2 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[1])
			}
		}
		if err := postgres.MigrateDown(cfg.Database.URL, migrationsPath, steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info().Int("steps", steps).Msg("migrations rolled back")
		return nil
	default:
		return fmt.Errorf("unknown direction %q, want up or down", args[0])
	}
}
