package domain

import "time"

// JobStatus represents the lifecycle state of a scheduled job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// Terminal reports whether the status is final
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobSkipped:
		return true
	}
	return false
}

// FailureKind distinguishes why a job ended without success
type FailureKind string

const (
	// FailureNone means the job did not fail
	FailureNone FailureKind = ""
	// FailureExhausted means the loop hit its iteration limit
	FailureExhausted FailureKind = "exhausted"
	// FailureAbandoned means the oracle declared the unit unfixable
	FailureAbandoned FailureKind = "abandoned"
	// FailureEnvironment means workspace setup or another environment
	// precondition failed before or during the run
	FailureEnvironment FailureKind = "environment"
)

// Job binds a unit to one worker execution. Created by the scheduler,
// consumed by exactly one worker; the terminal status is immutable.
type Job struct {
	ID         string
	Unit       UnitOfWork
	Status     JobStatus
	Failure    FailureKind
	Error      string       // set for environment failures
	LastDiags  []Diagnostic // snapshot at job end
	Iterations int
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Succeeded reports whether the job reached a clean validation pass
func (j *Job) Succeeded() bool {
	return j.Status == JobSucceeded
}
