package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// It records the execution time of each step that uses it.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

type sleeperInput struct {
	ID string `hcl:"id"`
}

// Register registers the "sleeper" runner.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterRunner("sleeper", registry.Typed(func(ctx context.Context, _ *workspace.Workspace, input *sleeperInput) (map[string]string, error) {
		startTime := time.Now()
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		endTime := time.Now()

		m.mu.Lock()
		m.ExecutionTimes[input.ID] = &ExecutionRecord{Start: startTime, End: endTime}
		m.mu.Unlock()

		if m.completionChan != nil {
			m.completionChan <- input.ID
		}
		return map[string]string{"id": input.ID}, nil
	}))
}

// Record returns the execution window of id.
func (m *MockSleeperModule) Record(id string) (*ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.ExecutionTimes[id]
	return rec, ok
}
