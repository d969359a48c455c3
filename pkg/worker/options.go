package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/schedule"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration that is not part of Settings.
type WorkerConfig struct {
	// RunnerName is the prefix of the runner identity. A random suffix is
	// appended when the worker is created.
	RunnerName string
	Logger     *slog.Logger
	Metrics    *Metrics

	// StorageRetry applies to resetting a job after a failed run.
	StorageRetry *RetryConfig

	// NextRun plans successors when the processor is not a NextRunPlanner.
	NextRun schedule.Schedule

	Now func() time.Time
}

// WithLogger sets the logger of the worker.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithRunnerName sets the runner name prefix.
func WithRunnerName(name string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.RunnerName = name
	})
}

// WithMetrics records executed jobs, processing times and resets.
func WithMetrics(m *Metrics) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Metrics = m
	})
}

// WithStorageRetry configures retries of storage writes the loop must not lose.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithRetryAttempts sets the attempts of storage retries, keeping the
// default backoff.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		if c.StorageRetry != nil {
			cfg = *c.StorageRetry
		}
		cfg.MaxAttempts = max(n, 1)
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage write a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = 1
		c.StorageRetry = &cfg
	})
}

// WithNextRunSchedule plans successors from a schedule instead of the
// fixed AddNextJobAfter interval.
func WithNextRunSchedule(s schedule.Schedule) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.NextRun = s
	})
}

// WithClock overrides the time source of the worker.
func WithClock(now func() time.Time) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Now = now
	})
}
