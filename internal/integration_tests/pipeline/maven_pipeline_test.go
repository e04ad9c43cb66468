package integration_tests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/executor"
	"github.com/vk/mvnflow/internal/testutil"
)

const (
	registryURL  = "registry.example.com"
	registryUser = "ci-deployer"
	registryPass = "pa55-w0rd-do-not-log"
)

func pipelineOptions() testutil.HarnessOptions {
	return testutil.HarnessOptions{
		Inputs: map[string]string{"docker-registry": registryURL},
		Env: map[string]string{
			"DOCKER_REGISTRY_USER":     registryUser,
			"DOCKER_REGISTRY_PASSWORD": registryPass,
		},
	}
}

func TestPipeline_BuildTestVerifyDeploy(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")

	// --- Act ---
	result := testutil.RunIntegrationTest(t, pipelineOptions())

	// --- Assert ---
	require.NoError(t, result.Err, "pipeline failed:\n%s", result.LogOutput)
	for _, job := range []string{"build", "test", "verify", "deploy"} {
		testutil.AssertJobStatus(t, result, job, executor.Succeeded)
	}
	require.Equal(t, "build", result.Result.Order[0])
	require.Equal(t, "deploy", result.Result.Order[3])

	wantOutputs := map[string]string{
		"groupId":               "com.example",
		"artifactId":            "demo",
		"version":               "1.2.3",
		"localRepository":       "~/.m2/repository",
		"groupIdRepositoryPath": "~/.m2/repository/com/example",
	}
	if diff := cmp.Diff(wantOutputs, result.Result.Outputs); diff != "" {
		t.Errorf("workflow outputs mismatch (-want +got):\n%s", diff)
	}

	// The first run misses the cache, so project artifacts are purged before
	// the dependency cache is saved.
	testutil.AssertStepOutcome(t, result, "build", "purge", executor.OutcomeSuccess)
	testutil.AssertStepOutcome(t, result, "build", "cache_save", executor.OutcomeSuccess)

	// Every downstream job saw the project jar through the artifact bundle.
	for _, goal := range []string{"test", "verify", "deploy"} {
		require.Len(t, result.Maven.GoalInvocations(goal), 1, "goal %s", goal)
	}

	deploys := result.Maven.GoalInvocations("deploy")
	require.Equal(t, registryURL, deploys[0].Env["DOCKER_REGISTRY_URL"])
	require.Equal(t, registryUser, deploys[0].Env["DOCKER_REGISTRY_USER"])
	require.Equal(t, registryPass, deploys[0].Env["DOCKER_REGISTRY_PASSWORD"])
	require.Contains(t, result.LogOutput, "as ***")

	require.Equal(t, "succeeded", result.App.Status().Status)
}

func TestPipeline_JobsAreIsolated(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")

	// --- Act ---
	result := testutil.RunIntegrationTest(t, pipelineOptions())

	// --- Assert ---
	require.NoError(t, result.Err)
	homes := map[string]bool{}
	for _, inv := range result.Maven.Invocations() {
		homes[inv.Home] = true
		require.Equal(t, "<settings></settings>", inv.Settings, "settings fall back to the inline document")
	}
	require.Len(t, homes, 4, "each job runs maven with its own HOME")

	// Only the deploy invocation receives registry credentials.
	for _, inv := range result.Maven.Invocations() {
		if len(inv.Goals) == 1 && inv.Goals[0] == "deploy" {
			continue
		}
		_, ok := inv.Env["DOCKER_REGISTRY_PASSWORD"]
		require.False(t, ok, "credentials leaked into %v", inv.Args)
	}
}

func TestPipeline_SettingsFileFromProject(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")
	opts := pipelineOptions()
	opts.Source = testutil.WriteProject(t, map[string]string{
		".github/settings.xml": "<settings><offline>true</offline></settings>",
	})

	// --- Act ---
	result := testutil.RunIntegrationTest(t, opts)

	// --- Assert ---
	require.NoError(t, result.Err)
	for _, inv := range result.Maven.Invocations() {
		require.Equal(t, "<settings><offline>true</offline></settings>", inv.Settings)
	}
}

func TestPipeline_SecondRunHitsTheCache(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")
	cacheDir := filepath.Join(t.TempDir(), "shared-cache")
	opts := pipelineOptions()
	opts.CacheDir = cacheDir

	// --- Act ---
	first := testutil.RunIntegrationTest(t, opts)
	require.NoError(t, first.Err)
	second := testutil.RunIntegrationTest(t, opts)

	// --- Assert ---
	require.NoError(t, second.Err, "second run failed:\n%s", second.LogOutput)
	testutil.AssertStepOutcome(t, second, "build", "purge", executor.OutcomeSkipped)
	testutil.AssertStepOutcome(t, second, "build", "cache_save", executor.OutcomeSkipped)

	build := second.Result.Jobs["build"]
	restore, ok := build.Step("cache")
	require.True(t, ok)
	require.Equal(t, "true", restore.Outputs["cache_hit"])

	require.Len(t, second.Maven.GoalInvocations("test"), 1)
	require.NotEqual(t, first.RunDir, second.RunDir, "runs never share a run directory")
}

func TestPipeline_CachedRepositoryExcludesProjectArtifacts(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")
	cacheDir := filepath.Join(t.TempDir(), "shared-cache")
	opts := pipelineOptions()
	opts.CacheDir = cacheDir
	first := testutil.RunIntegrationTest(t, opts)
	require.NoError(t, first.Err)

	// A later run whose build fails before install still restores the cache.
	opts2 := pipelineOptions()
	opts2.CacheDir = cacheDir
	result := testutil.RunIntegrationTest(t, withFailingGoal(opts2, "install"))

	// --- Assert ---
	require.Error(t, result.Err)
	build := result.Result.Jobs["build"]
	repo := filepath.Join(result.RunDir, "jobs", "build", "home", ".m2", "repository")
	_, err := os.Stat(filepath.Join(repo, "org", "thirdparty", "lib", "1.0", "lib-1.0.jar"))
	require.NoError(t, err, "dependencies come back from the cache")
	_, err = os.Stat(filepath.Join(repo, "com", "example"))
	require.True(t, os.IsNotExist(err), "project artifacts must not be cached")
	require.Equal(t, executor.Failed, build.Status)
}
