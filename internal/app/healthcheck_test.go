package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/events"
	"github.com/vk/mvnflow/internal/secrets"
)

func newHealthApp(t *testing.T) *App {
	t.Helper()
	logger := newLogger("debug", "text", &bytes.Buffer{}, secrets.NewSet())
	return &App{
		ctx:      ctxlog.WithLogger(context.Background(), logger),
		logger:   logger,
		config:   &Config{},
		recorder: events.NewRecorder(),
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newHealthApp(t).healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpointReportsJobStates(t *testing.T) {
	t.Parallel()
	a := newHealthApp(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.recorder.Publish(ctx, events.Event{Kind: events.RunStarted, RunID: "run-1", Time: now})
	a.recorder.Publish(ctx, events.Event{Kind: events.JobFinished, RunID: "run-1", Job: "build", Status: "succeeded", Time: now})
	a.recorder.Publish(ctx, events.Event{Kind: events.JobStarted, RunID: "run-1", Job: "test", Status: "running", Time: now})

	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap events.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "running", snap.Status)
	assert.Equal(t, map[string]string{"build": "succeeded", "test": "running"}, snap.Jobs)
}

func TestHealthCheckServerDisabled(t *testing.T) {
	t.Parallel()
	a := newHealthApp(t)

	a.healthCheckServer()

	assert.Nil(t, a.httpServer)
	assert.NoError(t, a.closeHealthCheckServer())
}

func TestLoggerMasksSecrets(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	set := secrets.NewSet()
	logger := newLogger("info", "json", &buf, set)

	// Secrets registered after the logger was built are masked too.
	set.Add("token", "hunter2-token")
	logger.Info("Calling registry with hunter2-token.", "auth", "Bearer hunter2-token")

	assert.NotContains(t, buf.String(), "hunter2-token")
	assert.Contains(t, buf.String(), "***")
}
