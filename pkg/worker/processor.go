package worker

import (
	"context"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/repository"
)

// Processor runs the work of a claimed job and returns its result.
//
// The job must not be retained after Process returns. Long running
// processors should watch ctx and return its error once it is done.
type Processor[P, R any] interface {
	Process(ctx context.Context, job *repository.Job[P, R]) (*R, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc[P, R any] func(ctx context.Context, job *repository.Job[P, R]) (*R, error)

// Process calls f.
func (f ProcessorFunc[P, R]) Process(ctx context.Context, job *repository.Job[P, R]) (*R, error) {
	return f(ctx, job)
}

// A Processor may implement any of the following interfaces to hook into
// the worker loop.

// InitialParametersProvider supplies the parameters of the bootstrap job.
// Without it the bootstrap job has no parameters.
type InitialParametersProvider[P any] interface {
	InitialParameters() *P
}

// NextRunPlanner decides when the successor of a finished job is due.
// Returning zero or less skips the successor.
type NextRunPlanner[R any] interface {
	NextRunIn(settings Settings, result *R) time.Duration
}

// PreRunHook is called at the start of every loop iteration.
type PreRunHook interface {
	PreRun(ctx context.Context)
}

// PostRunHook is called after every loop iteration that did not fail.
type PostRunHook interface {
	PostRun(ctx context.Context)
}
