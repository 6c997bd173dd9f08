package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/storage"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// RatingRollupArgs recomputes the denormalised rating of one profile.
type RatingRollupArgs struct {
	ProfileID uuid.UUID `json:"profile_id"`
}

func (RatingRollupArgs) Kind() string { return JobKindRatingRollup }

// RatingReconcileArgs recomputes every profile's rating.
type RatingReconcileArgs struct{}

func (RatingReconcileArgs) Kind() string { return JobKindRatingReconcile }

type RatingRollupWorker struct {
	river.WorkerDefaults[RatingRollupArgs]
	Ratings storage.RatingRepository
	Logger  *slog.Logger
}

func (RatingRollupWorker) Kind() string { return JobKindRatingRollup }

func (w RatingRollupWorker) Work(ctx context.Context, job *river.Job[RatingRollupArgs]) error {
	if w.Ratings == nil {
		return fmt.Errorf("rating repository not configured")
	}
	if job == nil {
		return fmt.Errorf("rating rollup job missing")
	}
	if job.Args.ProfileID == uuid.Nil {
		return river.JobCancel(fmt.Errorf("rating rollup: profile id is required"))
	}

	if err := w.Ratings.Recompute(ctx, job.Args.ProfileID); err != nil {
		return fmt.Errorf("recompute rating for %s: %w", job.Args.ProfileID, err)
	}
	if w.Logger != nil {
		w.Logger.Debug("rating recomputed", "profile_id", job.Args.ProfileID.String(), "attempt", job.Attempt)
	}
	return nil
}

// RatingReconcileWorker rebuilds profile_ratings from the reviews table so
// missed rollups are repaired within a day.
type RatingReconcileWorker struct {
	river.WorkerDefaults[RatingReconcileArgs]
	Ratings storage.RatingRepository
	Logger  *slog.Logger
}

func (RatingReconcileWorker) Kind() string { return JobKindRatingReconcile }

func (w RatingReconcileWorker) Timeout(*river.Job[RatingReconcileArgs]) time.Duration {
	return 10 * time.Minute
}

func (w RatingReconcileWorker) Work(ctx context.Context, job *river.Job[RatingReconcileArgs]) error {
	if w.Ratings == nil {
		return fmt.Errorf("rating repository not configured")
	}

	start := time.Now()
	rows, err := w.Ratings.RecomputeAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile ratings: %w", err)
	}

	if w.Logger != nil {
		w.Logger.Info("ratings reconciled",
			"profiles", rows,
			"attempt", job.Attempt,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

// NewWorkers registers every job worker.
func NewWorkers(ratings storage.RatingRepository, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RatingRollupArgs](workers, RatingRollupWorker{Ratings: ratings, Logger: logger})
	river.AddWorker[RatingReconcileArgs](workers, RatingReconcileWorker{Ratings: ratings, Logger: logger})
	return workers
}
