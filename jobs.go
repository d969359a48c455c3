// Package jobs provides a database backed job repository and the worker
// loop that drives it.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := jobs.Open(jobs.StorageConfig{Driver: "sqlite", DSN: "jobs.db", AutoMigrate: true})
//	repo := jobs.NewRepository[Params, Result](jobs.NewGormStorage(db))
//
//	settings := jobs.DefaultSettings("nightly-report")
//	settings.AddNextJobAfter = 24 * time.Hour
//	settings.AddInitialJob = true
//
//	w, _ := jobs.NewWorker[Params, Result](repo, jobs.ProcessorFunc[Params, Result](
//	    func(ctx context.Context, job *jobs.TypedJob[Params, Result]) (*Result, error) {
//	        return buildReport(ctx, job.Parameters)
//	    }), settings)
//	w.Start(ctx)
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/jobctx"
	"github.com/jdziat/simple-job-worker/pkg/repository"
	"github.com/jdziat/simple-job-worker/pkg/schedule"
	"github.com/jdziat/simple-job-worker/pkg/security"
	"github.com/jdziat/simple-job-worker/pkg/storage"
	"github.com/jdziat/simple-job-worker/pkg/worker"
)

type (
	// Job is the persisted job record.
	Job = core.Job

	// JobState is the lifecycle state of a job.
	JobState = core.JobState

	// Store defines the persistence layer for jobs.
	Store = core.Store

	// Event is the interface for all repository events.
	Event = core.Event

	// JobAdded is emitted when a job or successor is created.
	JobAdded = core.JobAdded

	// JobStarted is emitted when a job is claimed by a runner.
	JobStarted = core.JobStarted

	// JobProgressed is emitted when item counters change.
	JobProgressed = core.JobProgressed

	// JobFinished is emitted when a job finishes.
	JobFinished = core.JobFinished

	// JobReset is emitted when a failed job is returned to the requested state.
	JobReset = core.JobReset

	// JobsDeleted is emitted after old jobs were pruned.
	JobsDeleted = core.JobsDeleted

	// GormStorage implements Store using GORM.
	GormStorage = storage.GormStorage

	// StorageConfig selects and configures the database.
	StorageConfig = storage.Config

	// PoolConfig holds connection pool settings.
	PoolConfig = storage.PoolConfig

	// Codec serializes job parameters and results.
	Codec = repository.Codec

	// JSONCodec is the default Codec.
	JSONCodec = repository.JSONCodec

	// RepositoryOption configures a Repository.
	RepositoryOption = repository.Option

	// Settings configures a Worker.
	Settings = worker.Settings

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// RetryConfig holds configuration for retry with backoff.
	RetryConfig = worker.RetryConfig

	// Metrics holds the Prometheus collectors of workers.
	Metrics = worker.Metrics

	// Stats is a snapshot of a worker's counters.
	Stats = worker.Stats

	// PreRunHook is called at the start of every loop iteration.
	PreRunHook = worker.PreRunHook

	// PostRunHook is called after every successful loop iteration.
	PostRunHook = worker.PostRunHook

	// Schedule defines when a job should run next.
	Schedule = schedule.Schedule
)

// TypedJob is a job with decoded parameters and result.
type TypedJob[P, R any] = repository.Job[P, R]

// Repository is the generic job repository.
type Repository[P, R any] = repository.Repository[P, R]

// JobRepository is the set of repository operations a worker needs.
type JobRepository[P, R any] = repository.JobRepository[P, R]

// Worker claims and processes jobs of one type.
type Worker[P, R any] = worker.Worker[P, R]

// Processor runs the work of a claimed job.
type Processor[P, R any] = worker.Processor[P, R]

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc[P, R any] = worker.ProcessorFunc[P, R]

// InitialParametersProvider supplies the parameters of the bootstrap job.
type InitialParametersProvider[P any] = worker.InitialParametersProvider[P]

// NextRunPlanner decides when the successor of a finished job is due.
type NextRunPlanner[R any] = worker.NextRunPlanner[R]

// Job states
const (
	StateRequested = core.StateRequested
	StateStarted   = core.StateStarted
	StateFinished  = core.StateFinished
)

// Security limits
const (
	MaxJobTypeNameLength  = security.MaxJobTypeNameLength
	MaxRunnerNameLength   = security.MaxRunnerNameLength
	MaxParametersSize     = security.MaxParametersSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrInvalidArgument     = core.ErrInvalidArgument
	ErrInvalidOperation    = core.ErrInvalidOperation
	ErrInvalidJobTypeName  = core.ErrInvalidJobTypeName
	ErrJobTypeNameTooLong  = core.ErrJobTypeNameTooLong
	ErrParametersTooLarge  = core.ErrParametersTooLarge
	ErrMissingFindFilter   = core.ErrMissingFindFilter
	ErrMissingDeleteFilter = core.ErrMissingDeleteFilter
	ErrUncommittedChanges  = core.ErrUncommittedChanges
	ErrJobNotFound         = core.ErrJobNotFound
	ErrJobNotOwned         = core.ErrJobNotOwned
	ErrNoCurrentJob        = core.ErrNoCurrentJob
	ErrClaimFailed         = worker.ErrClaimFailed
	ErrBootstrapFailed     = worker.ErrBootstrapFailed
)

// Open opens and configures the database described by cfg.
func Open(cfg StorageConfig, opts ...storage.PoolOption) (*gorm.DB, error) {
	return storage.Open(cfg, opts...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewRepository creates a repository for jobs with parameters P and results R.
func NewRepository[P, R any](s Store, opts ...RepositoryOption) *Repository[P, R] {
	return repository.New[P, R](s, opts...)
}

// NewWorker creates a worker driving repo with processor.
func NewWorker[P, R any](repo JobRepository[P, R], processor Processor[P, R], settings Settings, opts ...WorkerOption) (*Worker[P, R], error) {
	return worker.NewWorker(repo, processor, settings, opts...)
}

// DefaultSettings returns worker settings with the default delays.
func DefaultSettings(jobType string) Settings {
	return worker.DefaultSettings(jobType)
}

// NewMetrics registers the worker collectors on reg. Workers sharing reg
// share the collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	return worker.NewMetrics(reg)
}

// ParseJobState parses the wire form of a job state.
func ParseJobState(s string) (JobState, error) {
	return core.ParseJobState(s)
}

// Repository option functions

// WithCodec replaces the JSON codec of a repository.
func WithCodec(c Codec) RepositoryOption {
	return repository.WithCodec(c)
}

// Worker option functions

// WithLogger sets the logger of a worker.
func WithLogger(l *slog.Logger) WorkerOption {
	return worker.WithLogger(l)
}

// WithRunnerName sets the runner name prefix of a worker.
func WithRunnerName(name string) WorkerOption {
	return worker.WithRunnerName(name)
}

// WithMetrics records worker metrics on m.
func WithMetrics(m *Metrics) WorkerOption {
	return worker.WithMetrics(m)
}

// WithStorageRetry configures retries of storage writes.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return worker.WithStorageRetry(cfg)
}

// WithNextRunSchedule plans successors from a schedule.
func WithNextRunSchedule(s Schedule) WorkerOption {
	return worker.WithNextRunSchedule(s)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific UTC day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression. It panics on an invalid expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// ParseCron creates a schedule from a cron expression.
func ParseCron(expr string) (Schedule, error) {
	return schedule.ParseCron(expr)
}

// Job context functions

// JobFromContext returns the job being processed, or nil outside of a processor.
func JobFromContext(ctx context.Context) *Job {
	return jobctx.JobFromContext(ctx)
}

// JobIDFromContext returns the current job ID, or 0 outside of a processor.
func JobIDFromContext(ctx context.Context) int64 {
	return jobctx.JobIDFromContext(ctx)
}

// RunnerFromContext returns the runner processing the current job.
func RunnerFromContext(ctx context.Context) string {
	return jobctx.RunnerFromContext(ctx)
}

// SetTotalItems records how many items the current job will process.
func SetTotalItems(ctx context.Context, total int) error {
	return jobctx.SetTotalItems(ctx, total)
}

// AddProgress reports items processed successfully by the current job.
func AddProgress(ctx context.Context, items int) error {
	return jobctx.AddProgress(ctx, items)
}

// AddFailedProgress reports items the current job failed to process.
func AddFailedProgress(ctx context.Context, items int) error {
	return jobctx.AddFailedProgress(ctx, items)
}

// ValidateJobTypeName validates a job type name.
func ValidateJobTypeName(name string) error {
	return security.ValidateJobTypeName(name)
}
