package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/app"
	"github.com/vk/mvnflow/internal/events"
	"github.com/vk/mvnflow/internal/executor"
	"github.com/vk/mvnflow/internal/hcl_adapter"
	"github.com/vk/mvnflow/internal/process/processtest"
	"github.com/vk/mvnflow/internal/registry"
)

// FakeMavenPath is the executable name the harness configures. The fake
// runner never looks at the filesystem for it.
const FakeMavenPath = "/opt/maven/bin/mvn"

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessOptions describes one integration run. The zero value runs the
// built-in workflow against a default project with a fake mvn.
type HarnessOptions struct {
	// Files are workflow files written to a temporary directory. Nil selects
	// the built-in workflow.
	Files map[string]string
	// Source is the project directory. Empty writes a default project.
	Source string
	Inputs map[string]string
	// Env is consulted for secrets instead of the process environment.
	Env map[string]string
	// Maven replaces mvn. Nil uses a fake building com.example:demo:1.2.3.
	Maven *processtest.FakeMaven
	// CacheDir is the dependency cache root. Empty uses a fresh directory;
	// pass the same directory to share the cache between runs.
	CacheDir string
	// Modules replaces the built-in runners.
	Modules []registry.Module
	// Publisher receives the run events in addition to the app's recorder.
	Publisher events.Publisher
	Workers   int
	// Configure adjusts the configuration before NewConfig validates it.
	Configure func(*app.Config)
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Result    *executor.RunResult
	Maven     *processtest.FakeMaven
	// RunDir is kept after the run so tests can inspect it.
	RunDir string
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, opts HarnessOptions) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, opts)
}

// RunIntegrationTestWithContext provides a standardized harness for running integration
// tests with a specific context provided by the caller.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, opts HarnessOptions) *HarnessResult {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := app.Config{
		Source:      opts.Source,
		Inputs:      opts.Inputs,
		RunDir:      filepath.Join(tmpDir, "runs"),
		KeepRunDir:  true,
		LogLevel:    "debug",
		LogFormat:   "text",
		WorkerCount: opts.Workers,
	}
	if cfg.Source == "" {
		cfg.Source = WriteProject(t, nil)
	}
	if opts.Files != nil {
		workflowDir := filepath.Join(tmpDir, "workflow")
		require.NoError(t, os.MkdirAll(workflowDir, 0o755))
		WriteFiles(t, workflowDir, opts.Files)
		cfg.WorkflowPath = workflowDir
	}
	cfg.Storage.Cache.Dir = opts.CacheDir
	if cfg.Storage.Cache.Dir == "" {
		cfg.Storage.Cache.Dir = filepath.Join(tmpDir, "cache")
	}
	cfg.Storage.Maven.Executable = FakeMavenPath
	if opts.Configure != nil {
		opts.Configure(&cfg)
	}
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	fake := opts.Maven
	if fake == nil {
		fake = processtest.NewFakeMaven("com.example", "demo", "1.2.3")
	}
	appOpts := []app.Option{
		app.WithProcessRunner(fake),
		app.WithSecretLookup(func(key string) (string, bool) {
			v, ok := opts.Env[key]
			return v, ok
		}),
	}
	if len(opts.Modules) > 0 {
		appOpts = append(appOpts, app.WithModules(opts.Modules...))
	}
	if opts.Publisher != nil {
		appOpts = append(appOpts, app.WithPublisher(opts.Publisher))
	}

	logBuffer := &SafeBuffer{}
	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				if os.Getenv("MVNFLOW_TEST_LOGS") == "true" {
					t.Logf("--- HARNESS RECOVERED PANIC ---\n%q", fmt.Sprintf("%v", r))
				}
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hcl_adapter.NewLoader(), appOpts...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Maven:     fake,
		}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("MVNFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Result:    testApp.Result(),
		Maven:     fake,
		RunDir:    testApp.RunDir(),
	}
}
