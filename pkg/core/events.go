package core

import "time"

// Event is the interface for all repository events.
type Event interface {
	eventMarker()
}

// JobAdded is emitted when a job row is inserted, including successors.
type JobAdded struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobAdded) eventMarker() {}

// JobStarted is emitted when a runner claims a job.
type JobStarted struct {
	Job       *Job
	Runner    string
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobProgressed is emitted after the progress counters of a job changed.
type JobProgressed struct {
	JobID           int64
	TotalItems      int
	SuccessfulItems int
	FailedItems     int
	Timestamp       time.Time
}

func (*JobProgressed) eventMarker() {}

// JobFinished is emitted when a job is finished.
// Successor is nil unless a follow-up job was scheduled.
type JobFinished struct {
	Job       *Job
	Successor *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobFinished) eventMarker() {}

// JobReset is emitted when a started job is returned to the requested state.
type JobReset struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobReset) eventMarker() {}

// JobsDeleted is emitted after a prune.
type JobsDeleted struct {
	Type      string
	State     JobState
	Count     int64
	Timestamp time.Time
}

func (*JobsDeleted) eventMarker() {}
