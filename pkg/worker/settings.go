package worker

import (
	"fmt"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/security"
)

// Default settings values.
const (
	DefaultInitialDelay    = 30 * time.Second
	DefaultPollingInterval = 10 * time.Second

	// DefaultBootstrapHorizon is how far ahead the bootstrap check looks for
	// an existing job when AddNextJobAfter is not set.
	DefaultBootstrapHorizon = 24 * time.Hour

	// PruneInterval is the minimum time between two prune runs of a worker.
	PruneInterval = 24 * time.Hour
)

// Settings holds the configuration of a worker.
type Settings struct {
	// InitialDelay is waited once before the first claim attempt.
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// PollingInterval is waited between two claim attempts.
	PollingInterval time.Duration `mapstructure:"polling_interval"`

	// AddNextJobAfter schedules a successor this long after a job finished.
	// Zero means no successor is added.
	AddNextJobAfter time.Duration `mapstructure:"add_next_job_after"`

	// JobType is the type of jobs the worker claims. Required.
	JobType string `mapstructure:"job_type"`

	// AddInitialJob creates a job at first run when none is pending.
	AddInitialJob bool `mapstructure:"add_initial_job"`

	// DeleteJobsOlderThan prunes finished jobs older than this.
	// Zero disables pruning.
	DeleteJobsOlderThan time.Duration `mapstructure:"delete_jobs_older_than"`
}

// DefaultSettings returns settings with the default delays for the given job type.
func DefaultSettings(jobType string) Settings {
	return Settings{
		InitialDelay:    DefaultInitialDelay,
		PollingInterval: DefaultPollingInterval,
		JobType:         jobType,
	}
}

// Validate reports whether the settings can drive a worker.
func (s Settings) Validate() error {
	if err := security.ValidateJobTypeName(s.JobType); err != nil {
		return err
	}
	if s.InitialDelay < 0 || s.PollingInterval < 0 || s.AddNextJobAfter < 0 || s.DeleteJobsOlderThan < 0 {
		return fmt.Errorf("%w: worker durations must not be negative", core.ErrInvalidArgument)
	}
	return nil
}

// bootstrapHorizon is the window checked for an existing job before the
// initial job is added.
func (s Settings) bootstrapHorizon() time.Duration {
	if s.AddNextJobAfter > 0 {
		return s.AddNextJobAfter
	}
	return DefaultBootstrapHorizon
}
