package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-navigator/server/internal/config"
	"github.com/smart-navigator/server/internal/domain/locations"
	"github.com/smart-navigator/server/internal/storage/postgres"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-import locations from a CSV file",
	Long: `Import campus locations from a CSV file.

The file needs a header row with at least name, type, latitude and
longitude columns; description, tags, floor, capacity and facilities are
optional. The import is all-or-nothing: any invalid row rejects the whole
file and every failure is reported.

Example:
  navigator import data/locations.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	count, err := locations.NewService(repo.Locations()).Import(ctx, file)
	if err != nil {
		var importErr *locations.ImportError
		if errors.As(err, &importErr) {
			for _, rowErr := range importErr.Rows {
				fmt.Fprintln(cmd.ErrOrStderr(), rowErr.Error())
			}
			return fmt.Errorf("import rejected: %d invalid rows", len(importErr.Rows))
		}
		return err
	}

	logger.Info().Int("imported", count).Str("file", args[0]).Msg("csv import complete")
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d locations\n", count)
	return nil
}
