// Package jobctx provides public access to job context for processing callbacks.
package jobctx

import (
	"context"

	"github.com/jdziat/simple-job-worker/pkg/core"
	intctx "github.com/jdziat/simple-job-worker/pkg/internal/context"
)

// JobFromContext returns the job being processed, or nil outside of a processing callback.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID, or 0 outside of a processing callback.
func JobIDFromContext(ctx context.Context) int64 {
	job := JobFromContext(ctx)
	if job == nil {
		return 0
	}
	return job.ID
}

// RunnerFromContext returns the runner processing the current job.
func RunnerFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.Runner
}

// SetTotalItems records how many items the current job will process.
func SetTotalItems(ctx context.Context, total int) error {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.SetTotalItems == nil {
		return core.ErrNoCurrentJob
	}
	return jc.SetTotalItems(ctx, total)
}

// AddProgress reports items processed successfully by the current job.
func AddProgress(ctx context.Context, items int) error {
	return addProgress(ctx, items, false)
}

// AddFailedProgress reports items the current job failed to process.
func AddFailedProgress(ctx context.Context, items int) error {
	return addProgress(ctx, items, true)
}

func addProgress(ctx context.Context, items int, failed bool) error {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.AddProgress == nil {
		return core.ErrNoCurrentJob
	}
	return jc.AddProgress(ctx, items, failed)
}
