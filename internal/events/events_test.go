package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/ctxlog"
)

type staticSecrets []string

func (s staticSecrets) Values() []string { return s }

func TestRecorder_Snapshot(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()
	assert.Equal(t, "idle", r.Snapshot().Status)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.Publish(ctx, Event{Kind: RunStarted, RunID: "r1", Time: t0})
	r.Publish(ctx, Event{Kind: JobStarted, RunID: "r1", Job: "build", Status: "running", Time: t0})
	r.Publish(ctx, Event{Kind: JobFinished, RunID: "r1", Job: "build", Status: "succeeded", Time: t0.Add(time.Second)})
	r.Publish(ctx, Event{Kind: JobFinished, RunID: "r1", Job: "deploy", Status: "skipped", Time: t0.Add(2 * time.Second)})
	r.Publish(ctx, Event{Kind: RunFinished, RunID: "r1", Status: "failed", Time: t0.Add(3 * time.Second)})

	want := Snapshot{
		RunID:   "r1",
		Status:  "failed",
		Jobs:    map[string]string{"build": "succeeded", "deploy": "skipped"},
		Updated: t0.Add(3 * time.Second),
	}
	if diff := cmp.Diff(want, r.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, r.Events(), 5)

	snap := r.Snapshot()
	snap.Jobs["build"] = "mutated"
	assert.Equal(t, "succeeded", r.Snapshot().Jobs["build"])

	r.Publish(ctx, Event{Kind: RunStarted, RunID: "r2", Time: t0})
	assert.Empty(t, r.Snapshot().Jobs, "a new run resets the snapshot")
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Multi{a, nil, Nop{}, b}.Publish(context.Background(), Event{Kind: JobStarted, Job: "x"})
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestSocketIO_PayloadMasksSecrets(t *testing.T) {
	s := &SocketIO{secrets: staticSecrets{"hunter2"}}
	got := s.payload(Event{
		Kind:    JobFinished,
		RunID:   "r1",
		Job:     "deploy",
		Status:  "failed",
		Error:   "login as hunter2 refused",
		Outputs: map[string]string{"exit_code": "1"},
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	want := map[string]any{
		"kind":    "job_finished",
		"run_id":  "r1",
		"job":     "deploy",
		"status":  "failed",
		"error":   "login as *** refused",
		"outputs": map[string]any{"exit_code": "1"},
		"time":    "2026-01-02T03:04:05Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDialSocketIO_InvalidURL(t *testing.T) {
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	_, err := DialSocketIO(ctx, SocketIOOptions{URL: "/socket.io/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a scheme and a host")
}
