// Package events carries run lifecycle notifications from the executor to
// whoever watches a run: the status endpoint, a socket.io server, tests.
package events

import (
	"context"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

const (
	RunStarted   Kind = "run_started"
	RunFinished  Kind = "run_finished"
	JobStarted   Kind = "job_started"
	JobFinished  Kind = "job_finished"
	StepFinished Kind = "step_finished"
)

// Event is one lifecycle notification. Outputs never carry secret-derived
// values.
type Event struct {
	Kind    Kind              `json:"kind"`
	RunID   string            `json:"run_id"`
	Job     string            `json:"job,omitempty"`
	Step    string            `json:"step,omitempty"`
	Status  string            `json:"status,omitempty"`
	Error   string            `json:"error,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
	Time    time.Time         `json:"time"`
}

// Publisher receives events. Implementations must be safe for concurrent
// use and must not block the run for long; delivery problems are theirs to
// log.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}

// Multi fans an event out to several publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}
