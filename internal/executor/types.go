package executor

import (
	"errors"
	"time"
)

// ErrSkipped marks jobs that never ran because an upstream job did not
// succeed or the run was cancelled.
var ErrSkipped = errors.New("skipped")

// Status is the execution state of a job or of a whole run.
type Status int32

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// StepResult records one step of a job.
type StepResult struct {
	ID       string
	Uses     string
	Outcome  Outcome
	Outputs  map[string]string
	Err      error
	Duration time.Duration
}

// JobResult records one job.
type JobResult struct {
	Name    string
	Status  Status
	Outputs map[string]string
	Steps   []*StepResult
	Err     error
	Started time.Time
	Ended   time.Time
}

// Step returns the result of the step with the given id.
func (r *JobResult) Step(id string) (*StepResult, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// RunResult records a whole run.
type RunResult struct {
	ID     string
	Status Status
	// Jobs holds every job of the workflow by name.
	Jobs map[string]*JobResult
	// Order lists job names in topological order.
	Order   []string
	Outputs map[string]string
}
