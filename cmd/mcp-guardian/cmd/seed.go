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

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert services listed in config into the database",
	Long: `Read the services section of the config file and upsert each entry
into the database via upsert_service_from_config (spec.md §4.E): a
service whose name already exists is left untouched, so seeding is safe
to run repeatedly and never overwrites admin-API changes.

Seeded services have no snapshot until the check scheduler first checks
them (enabled services with check_frequency_minutes > 0). With no approved
snapshot to compare against, that check stores an unapproved snapshot and
disables the service until an "approve" admin call approves it. Run
"serve" afterward to start polling.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	var created, skipped int
	for _, seed := range cfg.Services {
		_, wasCreated, err := store.UpsertServiceFromConfig(ctx, seed.Name, seed.UpstreamURL, seed.Enabled, seed.CheckFrequencyMinutes)
		if err != nil {
			return fmt.Errorf("seed service %q: %w", seed.Name, err)
		}
		if wasCreated {
			created++
			fmt.Printf("created %s -> %s\n", seed.Name, seed.UpstreamURL)
		} else {
			skipped++
			fmt.Printf("skipped %s (already exists)\n", seed.Name)
		}
	}

	fmt.Printf("seed complete: %d created, %d skipped\n", created, skipped)
	return nil
}
