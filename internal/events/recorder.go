package events

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the state of a run as seen through its events.
type Snapshot struct {
	RunID   string            `json:"run_id"`
	Status  string            `json:"status"`
	Jobs    map[string]string `json:"jobs"`
	Updated time.Time         `json:"updated"`
}

// Recorder keeps every event it receives and a rolling snapshot.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
	snap   Snapshot
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{snap: Snapshot{Status: "idle", Jobs: map[string]string{}}}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.snap.Updated = e.Time
	switch e.Kind {
	case RunStarted:
		r.snap = Snapshot{RunID: e.RunID, Status: "running", Jobs: map[string]string{}, Updated: e.Time}
	case RunFinished:
		r.snap.Status = e.Status
	case JobStarted, JobFinished:
		r.snap.Jobs[e.Job] = e.Status
	}
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}

// Snapshot returns a copy of the current run state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.snap
	s.Jobs = make(map[string]string, len(r.snap.Jobs))
	for k, v := range r.snap.Jobs {
		s.Jobs[k] = v
	}
	return s
}
