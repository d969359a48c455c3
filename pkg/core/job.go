// Package core provides the domain models and interfaces for the jobs package.
package core

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// JobState represents the lifecycle state of a job.
// The constant values are the strings persisted in the state column.
type JobState string

const (
	StateRequested JobState = "REQUESTED"
	StateStarted   JobState = "STARTED"
	StateFinished  JobState = "FINISHED"
)

// jobStates maps every accepted spelling to its state.
var jobStates = map[string]JobState{
	"REQUESTED": StateRequested,
	"requested": StateRequested,
	"Requested": StateRequested,
	"STARTED":   StateStarted,
	"started":   StateStarted,
	"Started":   StateStarted,
	"FINISHED":  StateFinished,
	"finished":  StateFinished,
	"Finished":  StateFinished,
}

// ParseJobState converts a string into a JobState.
func ParseJobState(s string) (JobState, error) {
	state, ok := jobStates[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown job state %q", ErrInvalidArgument, s)
	}
	return state, nil
}

// Valid reports whether s is one of the known states.
func (s JobState) Valid() bool {
	switch s {
	case StateRequested, StateStarted, StateFinished:
		return true
	}
	return false
}

// Value implements driver.Valuer.
func (s JobState) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown job state %q", ErrInvalidArgument, string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *JobState) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("jobs: cannot scan %T into JobState", src)
	}
	state, err := ParseJobState(raw)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// Job is a persisted unit of work.
//
// Parameters and Result hold the serialized payloads. Typed access is
// provided by the repository package.
type Job struct {
	ID               int64          `gorm:"primaryKey;autoIncrement"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        *time.Time     `gorm:"autoUpdateTime:false"`
	DueDate          time.Time      `gorm:"index:idx_jobs_claim,priority:3;not null"`
	Type             string         `gorm:"index:idx_jobs_claim,priority:1;size:255;not null"`
	State            JobState       `gorm:"index:idx_jobs_claim,priority:2;size:20;not null"`
	Parameters       datatypes.JSON `gorm:"column:parameters"`
	Result           datatypes.JSON `gorm:"column:result"`
	TotalItems       *int
	SuccessfulItems  *int
	FailedItems      *int
	Runner           *string    `gorm:"size:255"`
	StartedAt        *time.Time // set on claim, cleared on reset
	ProcessingTimeMs *uint32
}

// TableName pins the table name.
func (Job) TableName() string {
	return "jobs"
}

// RunnerName returns the runner or an empty string.
func (j *Job) RunnerName() string {
	if j.Runner == nil {
		return ""
	}
	return *j.Runner
}

// ProcessingTime returns the recorded processing time, or zero.
func (j *Job) ProcessingTime() time.Duration {
	if j.ProcessingTimeMs == nil {
		return 0
	}
	return time.Duration(*j.ProcessingTimeMs) * time.Millisecond
}

// Counters returns the progress counters with nulls read as zero.
func (j *Job) Counters() (total, successful, failed int) {
	return deref(j.TotalItems), deref(j.SuccessfulItems), deref(j.FailedItems)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
