// Package context provides context helpers for the jobs package.
package context

import (
	"context"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext holds the job being processed and its progress callbacks.
type JobContext struct {
	Job    *core.Job
	Runner string
	// SetTotalItems records the number of items the job will process
	SetTotalItems func(ctx context.Context, total int) error
	// AddProgress adds items to the successful or failed counter
	AddProgress func(ctx context.Context, items int, failed bool) error
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}
