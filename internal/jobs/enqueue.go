package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Inserter is satisfied by *river.Client[pgx.Tx].
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer schedules rating rollups after a review is written.
type Enqueuer struct {
	client Inserter
	policy *RetryPolicy
}

func NewEnqueuer(client Inserter, policy *RetryPolicy) *Enqueuer {
	if policy == nil {
		policy = NewRetryPolicy(0)
	}
	return &Enqueuer{client: client, policy: policy}
}

func (e *Enqueuer) EnqueueRatingRollup(ctx context.Context, profileID uuid.UUID) error {
	if e == nil || e.client == nil {
		return fmt.Errorf("job client not configured")
	}
	opts := e.policy.InsertOpts(JobKindRatingRollup)
	if _, err := e.client.Insert(ctx, RatingRollupArgs{ProfileID: profileID}, opts); err != nil {
		return fmt.Errorf("enqueue rating rollup: %w", err)
	}
	return nil
}

// EnqueueRatingReconcile queues a full recomputation of every profile rating
// and returns the job ID.
func (e *Enqueuer) EnqueueRatingReconcile(ctx context.Context) (int64, error) {
	if e == nil || e.client == nil {
		return 0, fmt.Errorf("job client not configured")
	}
	result, err := e.client.Insert(ctx, RatingReconcileArgs{}, e.policy.InsertOpts(JobKindRatingReconcile))
	if err != nil {
		return 0, fmt.Errorf("enqueue rating reconcile: %w", err)
	}
	return result.Job.ID, nil
}
