package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindRatingRollup    = "rating_rollup"
	JobKindRatingReconcile = "rating_reconcile"
)

const (
	RatingRollupMaxAttempts    = 5
	RatingReconcileMaxAttempts = 3
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy. rollupAttempts overrides the
// rating rollup attempt limit when positive.
func NewRetryPolicy(rollupAttempts int) *RetryPolicy {
	if rollupAttempts <= 0 {
		rollupAttempts = RatingRollupMaxAttempts
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: RatingRollupMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindRatingRollup: {
				MaxAttempts: rollupAttempts,
				BaseDelay:   10 * time.Second,
				MaxDelay:    10 * time.Minute,
			},
			JobKindRatingReconcile: {
				MaxAttempts: RatingReconcileMaxAttempts,
				BaseDelay:   5 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOpts returns insert options for a job kind under this policy.
func (p *RetryPolicy) InsertOpts(kind string) *river.InsertOpts {
	return &river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	return *NewRetryPolicy(0).InsertOpts(kind)
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, policy *RetryPolicy, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	if policy == nil {
		policy = NewRetryPolicy(0)
	}
	config := &river.Config{
		RetryPolicy: policy,
		MaxAttempts: policy.Default.MaxAttempts,
		Hooks:       hooks,
	}
	// Queues and periodic jobs are only valid on a client that works jobs.
	if workers != nil {
		config.Workers = workers
		config.PeriodicJobs = periodicJobs
		config.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		}
	}
	config.ErrorHandler = NewFailureHandler(logger)
	if logger != nil {
		config.Logger = logger
	}
	return config
}

// NewClient creates a River client using pgx v5. A nil workers bundle gives
// an insert-only client.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, policy *RetryPolicy, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, policy, logger, hooks, periodicJobs))
}

// NewPeriodicJobs creates the periodic job schedule: the rating reconcile
// runs once a day.
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindRatingReconcile)
				return RatingReconcileArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: RatingRollupMaxAttempts, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
