package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/inventory/internal/control"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	Args:  cobra.NoArgs,
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := setup()
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured")
		os.Exit(1)
	}

	if err := control.Migrate(context.Background(), cfg); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database is up to date")
}
