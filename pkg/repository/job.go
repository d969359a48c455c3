package repository

import (
	"context"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// Job is a persisted job with decoded parameters and result.
//
// The embedded record still carries the serialized payloads; they are
// reachable as job.Job.Parameters and job.Job.Result.
type Job[P, R any] struct {
	*core.Job

	// Parameters is nil when the job was added without parameters.
	Parameters *P
	// Result is set by the processing callback before the job is finished.
	Result *R
}

// JobRepository is the set of operations a worker needs.
// *Repository implements it.
type JobRepository[P, R any] interface {
	AddJob(ctx context.Context, jobType string, dueDate time.Time, params *P) (*Job[P, R], error)
	FindExistingJob(ctx context.Context, jobType string, dueDate time.Time, params *P, includeStarted bool) (*Job[P, R], error)
	GetAndStartFirstPendingJob(ctx context.Context, jobType, runner string) (*Job[P, R], error)
	SetTotalItems(ctx context.Context, job *Job[P, R], total int) error
	AddProgress(ctx context.Context, job *Job[P, R], items int, failed bool) error
	FinishJob(ctx context.Context, job *Job[P, R], addNextJobIn time.Duration) error
	ResetJob(ctx context.Context, job *Job[P, R]) error
	CountJobs(ctx context.Context, jobType string, state core.JobState) (int64, error)
	DeleteJobs(ctx context.Context, jobType string, state core.JobState, olderThan time.Time) (int64, error)
}
