package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/internal/cli/output"
	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog/postgres"
)

var (
	migrateStatus bool
	migrateOutput string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the catalog schema",
	Long: `Apply the catalog schema migrations to the configured PostgreSQL database.

The schema holds blob_content, blob_alias and the indexes the collector
relies on. Migration bookkeeping lives in its own table so it never clashes
with the upload service's migrations.

Examples:
  # Apply pending migrations
  blobgc migrate

  # Show the current schema version without changing anything
  blobgc migrate --status`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show the schema version without migrating")
	migrateCmd.Flags().StringVarP(&migrateOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(migrateOutput)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var status postgres.MigrationStatus
	if migrateStatus {
		status, err = postgres.GetMigrationStatus(ctx, &cfg.Database)
	} else {
		logger.Info("Running catalog migrations", "host", cfg.Database.Host, "database", cfg.Database.Database)
		status, err = postgres.RunMigrations(ctx, &cfg.Database)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if format != output.FormatTable {
		return output.NewPrinter(cmd.OutOrStdout(), format).Print(status)
	}
	return output.SimpleTable(cmd.OutOrStdout(), [][2]string{
		{"Version", strconv.FormatUint(uint64(status.Version), 10)},
		{"Dirty", strconv.FormatBool(status.Dirty)},
		{"Applied", strconv.FormatBool(status.Applied)},
	})
}
