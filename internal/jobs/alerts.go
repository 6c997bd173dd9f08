package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// FailureHandler is the River error handler for rating jobs. Retryable
// failures are warnings; a job on its last attempt is logged as an error and
// counted in metrics.RiverJobsExhausted, with the affected profile when the
// job is a rollup so the nightly reconcile can be run early by hand.
type FailureHandler struct {
	Logger *slog.Logger
}

func NewFailureHandler(logger *slog.Logger) *FailureHandler {
	return &FailureHandler{Logger: logger}
}

func (h *FailureHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, job, err)
	return nil
}

func (h *FailureHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.report(ctx, job, fmt.Errorf("panic: %v", panicVal), slog.String("trace", trace))
	return nil
}

func (h *FailureHandler) report(ctx context.Context, job *rivertype.JobRow, err error, extra ...slog.Attr) {
	final := exhausted(job)
	if final {
		metrics.RiverJobsExhausted.WithLabelValues(job.Kind).Inc()
	}
	if h.Logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.Int64("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", err.Error()),
	}
	if job.Kind == JobKindRatingRollup {
		var args RatingRollupArgs
		if json.Unmarshal(job.EncodedArgs, &args) == nil {
			attrs = append(attrs, slog.String("profile_id", args.ProfileID.String()))
		}
	}
	attrs = append(attrs, extra...)

	if final {
		h.Logger.LogAttrs(ctx, slog.LevelError, "rating job exhausted retries", attrs...)
		return
	}
	h.Logger.LogAttrs(ctx, slog.LevelWarn, "rating job failed, will retry", attrs...)
}

func exhausted(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}
