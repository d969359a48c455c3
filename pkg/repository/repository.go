// Package repository provides typed access to the job table.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/security"
)

// Repository manages jobs whose parameters are of type P and whose results
// are of type R.
type Repository[P, R any] struct {
	store  core.Store
	codec  Codec
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

var _ JobRepository[struct{}, struct{}] = (*Repository[struct{}, struct{}])(nil)

// New creates a repository on top of store.
func New[P, R any](store core.Store, opts ...Option) *Repository[P, R] {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Repository[P, R]{
		store:  store,
		codec:  o.codec,
		logger: o.logger,
		now:    o.now,
	}
}

// Store returns the underlying store.
func (r *Repository[P, R]) Store() core.Store {
	return r.store
}

func (r *Repository[P, R]) clock() time.Time {
	return r.now().UTC()
}

// AddJob creates a requested job. A zero dueDate means now.
func (r *Repository[P, R]) AddJob(ctx context.Context, jobType string, dueDate time.Time, params *P) (*Job[P, R], error) {
	if err := security.ValidateJobTypeName(jobType); err != nil {
		return nil, err
	}
	raw, err := r.encodeParameters(params)
	if err != nil {
		return nil, err
	}

	now := r.clock()
	if dueDate.IsZero() {
		dueDate = now
	}
	job := &core.Job{
		CreatedAt:  now,
		DueDate:    dueDate.UTC(),
		Type:       jobType,
		State:      core.StateRequested,
		Parameters: raw,
	}
	if err := r.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("add job of type %q: %w", jobType, err)
	}

	r.logger.Info("added job", "job_id", job.ID, "job_type", jobType, "due_date", job.DueDate)
	r.Emit(&core.JobAdded{Job: job, Timestamp: now})
	return &Job[P, R]{Job: job, Parameters: params}, nil
}

// FindExistingJob returns the oldest job of jobType that is requested (or
// started, when includeStarted is set), due at or before dueDate, and whose
// parameters contain params. At least one of dueDate and params must be given.
func (r *Repository[P, R]) FindExistingJob(ctx context.Context, jobType string, dueDate time.Time, params *P, includeStarted bool) (*Job[P, R], error) {
	if dueDate.IsZero() && params == nil {
		return nil, core.ErrMissingFindFilter
	}
	raw, err := r.encodeParameters(params)
	if err != nil {
		return nil, err
	}

	filter := core.FindFilter{
		Type:           jobType,
		Parameters:     raw,
		IncludeStarted: includeStarted,
	}
	if !dueDate.IsZero() {
		due := dueDate.UTC()
		filter.DueBefore = &due
	}

	job, err := r.store.FindExisting(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find existing job of type %q: %w", jobType, err)
	}
	if job == nil {
		return nil, nil
	}
	return r.wrap(job)
}

// GetAndStartFirstPendingJob claims the oldest due requested job of jobType
// for runner. It returns (nil, nil) when no job is due.
//
// Failures inside the claiming transaction are logged and reported as "no
// job" so the caller simply polls again. Only a handle bound to an open
// transaction and context cancellation are returned as errors.
func (r *Repository[P, R]) GetAndStartFirstPendingJob(ctx context.Context, jobType, runner string) (*Job[P, R], error) {
	if err := security.ValidateRunnerName(runner); err != nil {
		return nil, err
	}

	job, err := r.store.ClaimNext(ctx, jobType, runner, r.clock())
	if err != nil {
		if errors.Is(err, core.ErrUncommittedChanges) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Error("error while getting and starting first pending job",
			"job_type", jobType, "runner", runner, "error", err)
		return nil, nil
	}
	if job == nil {
		return nil, nil
	}

	typed, err := r.wrap(job)
	if err != nil {
		// hand the row back so it is not stuck in the started state
		r.logger.Error("unable to decode claimed job, releasing it",
			"job_id", job.ID, "job_type", jobType, "runner", runner, "error", err)
		if resetErr := r.store.Reset(context.WithoutCancel(ctx), job.ID, runner, r.clock()); resetErr != nil {
			r.logger.Error("unable to release undecodable job", "job_id", job.ID, "error", resetErr)
		}
		return nil, nil
	}

	r.logger.Info("started job", "job_id", job.ID, "job_type", jobType, "runner", runner)
	r.Emit(&core.JobStarted{Job: job, Runner: runner, Timestamp: *job.StartedAt})
	return typed, nil
}

// SetTotalItems records how many items the job will process.
func (r *Repository[P, R]) SetTotalItems(ctx context.Context, job *Job[P, R], total int) error {
	if err := security.ValidateTotalItems(total); err != nil {
		return err
	}
	now := r.clock()
	if err := r.store.SetTotalItems(ctx, job.ID, total, now); err != nil {
		return fmt.Errorf("set total items of job %d: %w", job.ID, err)
	}
	job.TotalItems = &total
	job.UpdatedAt = &now

	r.emitProgress(job.Job, now)
	return nil
}

// AddProgress adds items to the successful counter of the job, or to the
// failed counter when failed is set. The update is applied under a row lock
// so concurrent reporters never lose increments.
func (r *Repository[P, R]) AddProgress(ctx context.Context, job *Job[P, R], items int, failed bool) error {
	if err := security.ValidateItemCount(items); err != nil {
		return err
	}
	now := r.clock()
	progress, err := r.store.AddProgress(ctx, job.ID, items, failed, now)
	if err != nil {
		return fmt.Errorf("add progress to job %d: %w", job.ID, err)
	}
	job.TotalItems = progress.TotalItems
	job.SuccessfulItems = progress.SuccessfulItems
	job.FailedItems = progress.FailedItems
	job.UpdatedAt = &now

	r.emitProgress(job.Job, now)
	return nil
}

// FinishJob marks a started job finished, stores its result and processing
// time, and schedules a successor with the same parameters addNextJobIn from
// now when addNextJobIn is positive.
func (r *Repository[P, R]) FinishJob(ctx context.Context, job *Job[P, R], addNextJobIn time.Duration) error {
	result, err := encode(r.codec, job.Result)
	if err != nil {
		return fmt.Errorf("encode result of job %d: %w", job.ID, err)
	}

	now := r.clock()
	var processingMs *uint32
	if job.StartedAt != nil {
		ms := processingMillis(now.Sub(*job.StartedAt))
		processingMs = &ms
	}

	var successor *core.Job
	if addNextJobIn > 0 {
		params, err := r.encodeParameters(job.Parameters)
		if err != nil {
			return err
		}
		successor = &core.Job{
			CreatedAt:  now,
			DueDate:    now.Add(addNextJobIn),
			Type:       job.Type,
			State:      core.StateRequested,
			Parameters: params,
		}
	}

	runner := job.RunnerName()
	err = r.store.Finish(ctx, core.Completion{
		JobID:            job.ID,
		Runner:           runner,
		Result:           result,
		ProcessingTimeMs: processingMs,
		FinishedAt:       now,
		Successor:        successor,
	})
	if err != nil {
		return fmt.Errorf("finish job %d: %w", job.ID, err)
	}

	job.State = core.StateFinished
	job.Runner = nil
	job.UpdatedAt = &now
	job.ProcessingTimeMs = processingMs
	job.Job.Result = result

	r.logger.Info("finished job", "job_id", job.ID, "job_type", job.Type, "runner", runner,
		"processing_time_ms", job.ProcessingTime().Milliseconds())
	if successor != nil {
		r.logger.Info("added successor job", "job_id", successor.ID, "job_type", successor.Type,
			"due_date", successor.DueDate, "previous_job_id", job.ID)
	}

	r.Emit(&core.JobFinished{Job: job.Job, Successor: successor, Duration: job.ProcessingTime(), Timestamp: now})
	if successor != nil {
		r.Emit(&core.JobAdded{Job: successor, Timestamp: now})
	}
	return nil
}

// ResetJob returns a started job to the requested state so it can be picked
// up again. The runner, start time and progress counters are cleared.
func (r *Repository[P, R]) ResetJob(ctx context.Context, job *Job[P, R]) error {
	now := r.clock()
	runner := job.RunnerName()
	if err := r.store.Reset(ctx, job.ID, runner, now); err != nil {
		return fmt.Errorf("reset job %d: %w", job.ID, err)
	}

	job.State = core.StateRequested
	job.Runner = nil
	job.StartedAt = nil
	job.SuccessfulItems = nil
	job.FailedItems = nil
	job.UpdatedAt = &now

	r.logger.Info("reset job", "job_id", job.ID, "job_type", job.Type, "runner", runner)
	r.Emit(&core.JobReset{Job: job.Job, Timestamp: now})
	return nil
}

// CountJobs counts jobs of jobType. An empty state counts every state.
func (r *Repository[P, R]) CountJobs(ctx context.Context, jobType string, state core.JobState) (int64, error) {
	count, err := r.store.Count(ctx, jobType, state)
	if err != nil {
		return 0, fmt.Errorf("count jobs of type %q: %w", jobType, err)
	}
	return count, nil
}

// DeleteJobs removes jobs matching every given filter: jobType unless empty,
// state unless empty, and last modification before olderThan unless zero.
// Calling it without any filter fails with core.ErrMissingDeleteFilter.
func (r *Repository[P, R]) DeleteJobs(ctx context.Context, jobType string, state core.JobState, olderThan time.Time) (int64, error) {
	if !olderThan.IsZero() {
		olderThan = olderThan.UTC()
	}
	filter := core.DeleteFilter{Type: jobType, State: state, OlderThan: olderThan}
	if filter.Empty() {
		return 0, core.ErrMissingDeleteFilter
	}
	deleted, err := r.store.Delete(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}

	r.logger.Info("deleted jobs", "job_type", jobType, "state", string(state), "older_than", olderThan, "deleted", deleted)
	r.Emit(&core.JobsDeleted{Type: jobType, State: state, Count: deleted, Timestamp: r.clock()})
	return deleted, nil
}

// GetJob loads a job by ID. Returns (nil, nil) if it does not exist.
func (r *Repository[P, R]) GetJob(ctx context.Context, id int64) (*Job[P, R], error) {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	if job == nil {
		return nil, nil
	}
	return r.wrap(job)
}

func (r *Repository[P, R]) encodeParameters(params *P) ([]byte, error) {
	raw, err := encode(r.codec, params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode parameters: %v", core.ErrInvalidArgument, err)
	}
	if err := security.ValidateParametersSize(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *Repository[P, R]) wrap(job *core.Job) (*Job[P, R], error) {
	params, err := decode[P](r.codec, job.Parameters)
	if err != nil {
		return nil, fmt.Errorf("decode parameters of job %d: %w", job.ID, err)
	}
	result, err := decode[R](r.codec, job.Result)
	if err != nil {
		return nil, fmt.Errorf("decode result of job %d: %w", job.ID, err)
	}
	return &Job[P, R]{Job: job, Parameters: params, Result: result}, nil
}

func (r *Repository[P, R]) emitProgress(job *core.Job, now time.Time) {
	total, ok, failed := job.Counters()
	r.Emit(&core.JobProgressed{
		JobID:           job.ID,
		TotalItems:      total,
		SuccessfulItems: ok,
		FailedItems:     failed,
		Timestamp:       now,
	})
}

// processingMillis rounds up to whole milliseconds so a finished job never
// reports zero processing time.
func processingMillis(d time.Duration) uint32 {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		return 1
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
