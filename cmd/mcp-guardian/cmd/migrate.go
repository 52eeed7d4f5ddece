package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jacklatrobe/MCP-Guardian/internal/adapter/outbound/sqlite"
	"github.com/jacklatrobe/MCP-Guardian/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Open the configured database (database.url) and apply the services
and snapshots schema, creating the file if it does not already exist.

This is idempotent: running it against an already-migrated database is
a no-op. It is safe to run before every "serve" as part of a deploy.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The schema lives in the database package itself (sqlite.Open applies
	// it on connect); migrate's job is simply to exercise that path against
	// the configured DSN so operators can run it standalone before serve.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(context.Background(), cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	defer func() { _ = store.Close() }()

	fmt.Printf("schema applied to %s\n", cfg.Database.URL)
	return nil
}
