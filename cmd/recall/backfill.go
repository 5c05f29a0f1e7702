package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixline/recall/internal/backfill"
	"github.com/helixline/recall/internal/extraction"
)

var (
	backfillForce   bool
	backfillWorkers int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Extract structured metadata for stored items",
	Long: `Scan the store and run metadata extraction for every item that has no
valid extracted info yet. Re-running without --force-refresh only retries
previous failures.

Examples:
  recall backfill
  recall backfill --force-refresh --workers 8`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillForce, "force-refresh", false, "re-process every item, ignoring existing extracted info")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "number of concurrent workers (default from config)")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := extraction.NewClient(extraction.Config{
		BaseURL:     a.cfg.Extraction.BaseURL,
		APIKey:      a.cfg.Extraction.APIKey,
		Model:       a.cfg.Extraction.Model,
		Timeout:     a.cfg.Extraction.Timeout,
		MaxAttempts: a.cfg.Extraction.MaxAttempts,
		RetryDelay:  a.cfg.Extraction.RetryDelay,
	}, a.logger.Named("extraction"))
	if err != nil {
		return err
	}

	workers := backfillWorkers
	if workers <= 0 {
		workers = a.cfg.Backfill.Workers
	}

	coordinator := backfill.New(a.store, client, a.logger.Named("backfill"))
	summary, err := coordinator.Run(cmd.Context(), backfillForce, workers)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Printf("Backfill complete: %d selected, %d updated, %d failed\n",
		summary.Selected, summary.Updated, summary.Failed)
	return nil
}
