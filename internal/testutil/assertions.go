package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/executor"
)

// AssertJobStatus checks the final status of a job in a harness run.
func AssertJobStatus(t *testing.T, result *HarnessResult, job string, want executor.Status) {
	t.Helper()
	require.NotNil(t, result.Result, "run produced no result: %v", result.Err)
	jr, ok := result.Result.Jobs[job]
	require.True(t, ok, "job '%s' not found in run result", job)
	require.Equal(t, want.String(), jr.Status.String(), "unexpected status for job '%s' (error: %v)", job, jr.Err)
}

// AssertStepOutcome checks how a step of a job ended.
func AssertStepOutcome(t *testing.T, result *HarnessResult, job, step string, want executor.Outcome) {
	t.Helper()
	require.NotNil(t, result.Result, "run produced no result: %v", result.Err)
	jr, ok := result.Result.Jobs[job]
	require.True(t, ok, "job '%s' not found in run result", job)
	sr, ok := jr.Step(step)
	require.True(t, ok, "step '%s' of job '%s' did not run", step, job)
	require.Equal(t, want, sr.Outcome, "unexpected outcome for %s.%s (error: %v)", job, step, sr.Err)
}
