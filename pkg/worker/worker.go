package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-job-worker/pkg/core"
	intctx "github.com/jdziat/simple-job-worker/pkg/internal/context"
	"github.com/jdziat/simple-job-worker/pkg/repository"
	"github.com/jdziat/simple-job-worker/pkg/schedule"
	"github.com/jdziat/simple-job-worker/pkg/security"
)

const runnerSuffixLength = 7

var _ core.Starter = (*Worker[struct{}, struct{}])(nil)

// Worker claims jobs of one type and hands them to a Processor, one at a time.
type Worker[P, R any] struct {
	repo      repository.JobRepository[P, R]
	processor Processor[P, R]
	settings  Settings
	config    WorkerConfig
	logger    *slog.Logger
	runner    string

	running      atomic.Bool
	lastPrunedAt time.Time

	mu    sync.Mutex
	stats Stats
}

// NewWorker creates a worker. The runner identity is the configured runner
// name (the job type by default) followed by a random suffix.
func NewWorker[P, R any](repo repository.JobRepository[P, R], processor Processor[P, R], settings Settings, opts ...WorkerOption) (*Worker[P, R], error) {
	if repo == nil || processor == nil {
		return nil, fmt.Errorf("%w: repository and processor are required", core.ErrInvalidArgument)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	config := WorkerConfig{
		RunnerName: settings.JobType,
		Logger:     slog.Default(),
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	runner := newRunnerID(config.RunnerName)
	if err := security.ValidateRunnerName(runner); err != nil {
		return nil, err
	}

	w := &Worker[P, R]{
		repo:      repo,
		processor: processor,
		settings:  settings,
		config:    config,
		logger:    config.Logger.With("runner", runner, "job_type", settings.JobType),
		runner:    runner,
	}
	w.stats = Stats{JobType: settings.JobType, Runner: runner}
	if settings.AddNextJobAfter > 0 {
		secs := int64(settings.AddNextJobAfter / time.Second)
		w.stats.JobIntervalSeconds = &secs
	}
	return w, nil
}

func newRunnerID(name string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:runnerSuffixLength]
	if name == "" {
		return suffix
	}
	return name + "-" + suffix
}

// Runner returns the runner identity the worker claims jobs with.
func (w *Worker[P, R]) Runner() string {
	return w.runner
}

// Settings returns the settings the worker was created with.
func (w *Worker[P, R]) Settings() Settings {
	return w.settings
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker[P, R]) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Running = w.running.Load()
	return s
}

// Start runs the worker loop until ctx is cancelled.
//
// It returns nil when stopped through ctx. It returns an error wrapping
// ErrClaimFailed when the repository cannot be asked for jobs, and one
// wrapping ErrBootstrapFailed when the initial job cannot be created.
// Failures of the processor never stop the loop.
func (w *Worker[P, R]) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: worker %s is already running", core.ErrInvalidOperation, w.runner)
	}
	defer w.running.Store(false)

	w.logger.Info("delaying runner start", "delay", w.settings.InitialDelay)
	if !sleep(ctx, w.settings.InitialDelay) {
		w.logger.Info("cancellation requested, worker stopped")
		return nil
	}

	w.logger.Info("starting runner")
	firstRun := true

	for {
		if ctx.Err() != nil {
			w.logger.Info("cancellation requested, worker stopped")
			return nil
		}

		started := w.now()
		executed, err := w.runOnce(ctx, firstRun)
		if executed {
			w.recordRun(w.now().Sub(started))
		}
		if err != nil {
			if isCancellation(ctx, err) {
				w.logger.Info("cancellation requested, worker stopped")
				return nil
			}
			w.logger.Error("stopping worker due to an unhandled error", "error", err)
			return err
		}
		firstRun = false

		if !sleep(ctx, w.settings.PollingInterval) {
			w.logger.Info("cancellation requested, worker stopped")
			return nil
		}
	}
}

// runOnce claims and processes at most one job, then bootstraps and prunes
// as configured. Once ctx is done nothing after processing runs. It reports
// whether a job was finished.
func (w *Worker[P, R]) runOnce(ctx context.Context, firstRun bool) (bool, error) {
	if h, ok := w.processor.(PreRunHook); ok {
		h.PreRun(ctx)
	}

	job, err := w.claim(ctx)
	if err != nil {
		return false, err
	}

	executed := false
	if job != nil {
		executed, err = w.handleJob(ctx, job)
		if err != nil {
			return false, err
		}
	}
	if ctx.Err() != nil {
		return executed, nil
	}
	if job == nil && firstRun && w.settings.AddInitialJob {
		if err := w.addInitialJob(ctx); err != nil {
			return false, err
		}
	}

	w.pruneIfDue(ctx)

	if h, ok := w.processor.(PostRunHook); ok {
		h.PostRun(ctx)
	}
	return executed, nil
}

func (w *Worker[P, R]) claim(ctx context.Context) (*repository.Job[P, R], error) {
	job, err := w.repo.GetAndStartFirstPendingJob(ctx, w.settings.JobType, w.runner)
	if err != nil {
		if isCancellation(ctx, err) {
			return nil, err
		}
		w.logger.Error("error checking for next job", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrClaimFailed, err)
	}
	return job, nil
}

// handleJob processes a claimed job and finishes it, or resets it when
// processing or finishing failed. Only a cancellation is returned.
func (w *Worker[P, R]) handleJob(ctx context.Context, job *repository.Job[P, R]) (bool, error) {
	result, err := w.process(ctx, job)
	if err == nil {
		job.Result = result
		err = w.repo.FinishJob(ctx, job, w.nextRunIn(result))
	}
	if err != nil {
		w.logger.Warn("failed to process job, job is being reset",
			"job_id", job.ID, "error", security.SanitizeErrorMessage(err.Error()))
		w.reset(ctx, job)
		if isCancellation(ctx, err) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (w *Worker[P, R]) process(ctx context.Context, job *repository.Job[P, R]) (result *R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jc := &intctx.JobContext{
		Job:    job.Job,
		Runner: w.runner,
		SetTotalItems: func(ctx context.Context, total int) error {
			return w.repo.SetTotalItems(ctx, job, total)
		},
		AddProgress: func(ctx context.Context, items int, failed bool) error {
			return w.repo.AddProgress(ctx, job, items, failed)
		},
	}
	return w.processor.Process(intctx.WithJobContext(ctx, jc), job)
}

// reset returns the job to the requested state. The reset runs even when
// ctx is already cancelled so a stopping worker does not strand its job.
func (w *Worker[P, R]) reset(ctx context.Context, job *repository.Job[P, R]) {
	resetCtx := context.WithoutCancel(ctx)
	err := retryWithBackoff(resetCtx, *w.config.StorageRetry, func() error {
		return w.repo.ResetJob(resetCtx, job)
	})
	if err != nil {
		w.logger.Error("failed to reset job after retries", "job_id", job.ID, "error", err)
		return
	}

	w.config.Metrics.jobReset(w.settings.JobType)
	w.mu.Lock()
	w.stats.ResetJobs++
	w.mu.Unlock()
}

// nextRunIn decides when the successor of a finished job is due. A
// NextRunPlanner takes precedence over a schedule, which takes precedence
// over Settings.AddNextJobAfter.
func (w *Worker[P, R]) nextRunIn(result *R) time.Duration {
	if p, ok := w.processor.(NextRunPlanner[R]); ok {
		return p.NextRunIn(w.settings, result)
	}
	if w.config.NextRun != nil {
		return schedule.Interval(w.config.NextRun, w.now())
	}
	return w.settings.AddNextJobAfter
}

// addInitialJob adds a job due at the end of the bootstrap horizon unless a
// requested or started job is already due before it.
func (w *Worker[P, R]) addInitialJob(ctx context.Context) error {
	dueDate := w.now().Add(w.settings.bootstrapHorizon())

	var params *P
	if p, ok := w.processor.(InitialParametersProvider[P]); ok {
		params = p.InitialParameters()
	}

	existing, err := w.repo.FindExistingJob(ctx, w.settings.JobType, dueDate, params, true)
	if err != nil {
		return w.bootstrapError(ctx, err)
	}
	if existing != nil {
		w.logger.Info("found existing job, skip adding initial job",
			"job_id", existing.ID, "due_date", existing.DueDate)
		return nil
	}

	job, err := w.repo.AddJob(ctx, w.settings.JobType, dueDate, params)
	if err != nil {
		return w.bootstrapError(ctx, err)
	}
	w.logger.Info("added initial job", "job_id", job.ID, "due_date", job.DueDate)
	return nil
}

func (w *Worker[P, R]) bootstrapError(ctx context.Context, err error) error {
	if isCancellation(ctx, err) {
		return err
	}
	w.logger.Error("error adding initial job", "error", err)
	return fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
}

// pruneIfDue deletes old finished jobs at most once per PruneInterval.
// Failures are logged and retried on a later iteration.
func (w *Worker[P, R]) pruneIfDue(ctx context.Context) {
	if w.settings.DeleteJobsOlderThan <= 0 {
		return
	}
	now := w.now()
	if !w.lastPrunedAt.IsZero() && now.Sub(w.lastPrunedAt) < PruneInterval {
		return
	}

	deleteBefore := now.Add(-w.settings.DeleteJobsOlderThan)
	deleted, err := w.repo.DeleteJobs(ctx, w.settings.JobType, core.StateFinished, deleteBefore)
	if err != nil {
		w.logger.Error("error deleting old jobs", "error", err)
		return
	}
	w.lastPrunedAt = w.now()

	if deleted > 0 {
		w.logger.Info("deleted finished jobs", "deleted", deleted, "finished_before", deleteBefore)
	}
}

func (w *Worker[P, R]) recordRun(d time.Duration) {
	w.config.Metrics.jobExecuted(w.settings.JobType, d)

	finishedAt := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.ExecutedJobs++
	w.stats.LastJobDurationMs = d.Milliseconds()
	w.stats.LastJobFinishedAt = &finishedAt
}

func (w *Worker[P, R]) now() time.Time {
	return w.config.Now().UTC()
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
