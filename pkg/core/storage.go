package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// FindFilter selects jobs for duplicate detection.
type FindFilter struct {
	Type string
	// DueBefore limits matches to jobs due at or before the instant.
	DueBefore *time.Time
	// Parameters is a serialized document the stored parameters must contain.
	Parameters []byte
	// IncludeStarted also matches jobs in the started state.
	IncludeStarted bool
}

// DeleteFilter selects jobs to prune. The zero value matches nothing and is rejected.
type DeleteFilter struct {
	Type  string
	State JobState
	// OlderThan matches jobs last modified before the instant.
	OlderThan time.Time
}

// Empty reports whether no filter field is set.
func (f DeleteFilter) Empty() bool {
	return f.Type == "" && f.State == "" && f.OlderThan.IsZero()
}

// Completion describes how a started job is finished.
type Completion struct {
	JobID int64
	// Runner must match the runner that claimed the job.
	Runner           string
	Result           []byte
	ProcessingTimeMs *uint32
	FinishedAt       time.Time
	// Successor is inserted in the same transaction when set.
	Successor *Job
}

// Progress holds the counters of a job after an update.
type Progress struct {
	TotalItems      *int
	SuccessfulItems *int
	FailedItems     *int
}

// Store defines the persistence layer for jobs.
//
// Implementations own the claiming protocol: ClaimNext must guarantee that a
// job is handed to at most one runner.
type Store interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	Insert(ctx context.Context, job *Job) error
	ClaimNext(ctx context.Context, jobType, runner string, now time.Time) (*Job, error)
	Finish(ctx context.Context, c Completion) error
	Reset(ctx context.Context, jobID int64, runner string, now time.Time) error

	// Progress
	SetTotalItems(ctx context.Context, jobID int64, total int, now time.Time) error
	AddProgress(ctx context.Context, jobID int64, items int, failed bool, now time.Time) (*Progress, error)

	// Queries
	FindExisting(ctx context.Context, filter FindFilter) (*Job, error)
	Count(ctx context.Context, jobType string, state JobState) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)

	// Maintenance
	Delete(ctx context.Context, filter DeleteFilter) (int64, error)
}
