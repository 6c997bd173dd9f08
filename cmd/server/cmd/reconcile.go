package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/jobs"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair derived data",
	Long: `Queue background jobs that recompute derived data from source rows.

Examples:
  # Recompute every profile's rating from its reviews
  server reconcile ratings`,
}

var reconcileRatingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "Recompute every profile rating from its reviews",
	Long: `Queue a rating reconcile job. A running server with jobs enabled picks it up;
the same job also runs once a day on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Insert-only client: no workers, no periodic jobs.
		policy := jobs.NewRetryPolicy(cfg.Jobs.RetryRatingRollup)
		client, err := jobs.NewClient(pool, nil, policy, newSlogLogger(cfg.Logging), nil, nil)
		if err != nil {
			return fmt.Errorf("job client: %w", err)
		}
		jobID, err := jobs.NewEnqueuer(client, policy).EnqueueRatingReconcile(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "queued rating reconcile job %d\n", jobID)
		return nil
	},
}

func init() {
	reconcileCmd.AddCommand(reconcileRatingsCmd)
}
