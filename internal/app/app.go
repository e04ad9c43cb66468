package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/mvnflow/internal/artifact"
	"github.com/vk/mvnflow/internal/blob"
	"github.com/vk/mvnflow/internal/cache"
	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/events"
	"github.com/vk/mvnflow/internal/executor"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/secrets"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	model      *config.Model
	converter  config.Converter
	secrets    *secrets.Set
	inputs     map[string]string
	runID      string
	runDir     string
	artifacts  *artifact.Store
	executor   *executor.Executor
	recorder   *events.Recorder
	publishers *fanout
	httpServer *http.Server
	closers    []func() error
	result     *executor.RunResult
	closeOnce  sync.Once
}

// Option customizes NewApp. Options exist mostly for tests.
type Option func(*options)

type options struct {
	runner  process.Runner
	lookup  func(string) (string, bool)
	modules []registry.Module
	pubs    []events.Publisher
}

// WithProcessRunner replaces the runner used to start external programs.
func WithProcessRunner(r process.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithSecretLookup replaces os.LookupEnv for resolving secrets.
func WithSecretLookup(lookup func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = lookup }
}

// WithModules replaces the built-in modules.
func WithModules(mods ...registry.Module) Option {
	return func(o *options) { o.modules = mods }
}

// WithPublisher adds an event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.pubs = append(o.pubs, p) }
}

// NewApp is the constructor for the main application. It loads and validates
// the workflow, resolves inputs and secrets, opens the storage backends and
// plans the run. Any failure is a fatal startup error and panics.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) *App {
	o := options{runner: process.NewExecRunner(), lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	secretSet := secrets.NewSet()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW, secretSet)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var paths []string
	if cfg.WorkflowPath != "" {
		paths = append(paths, cfg.WorkflowPath)
	}
	model, converter, err := loader.Load(ctx, paths...)
	if err != nil {
		panic(fmt.Errorf("failed to load workflow: %w", err))
	}
	wf := model.Workflow
	logger.Debug("Workflow loaded.", "workflow", wf.Name, "files", model.Files)

	decls := make([]secrets.Declaration, len(wf.Secrets))
	for i, s := range wf.Secrets {
		decls[i] = secrets.Declaration{Name: s.Name, Required: s.Required}
	}
	resolved, err := secrets.FromLookup(decls, o.lookup)
	if err != nil {
		panic(err)
	}
	for _, name := range resolved.Names() {
		v, _ := resolved.Value(name)
		secretSet.Add(name, v)
	}
	logger.Debug("Secrets resolved.", "count", secretSet.Len())

	inputs, err := wf.ResolveInputs(cfg.Inputs)
	if err != nil {
		panic(err)
	}

	runID := uuid.NewString()
	base := cfg.RunDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "mvnflow")
	}
	runDir := filepath.Join(base, runID)
	defer func() {
		if r := recover(); r != nil {
			_ = os.RemoveAll(runDir)
			panic(r)
		}
	}()

	cacheStore, err := openStore(ctx, cfg.Storage, cfg.Storage.Cache, DefaultCacheDir())
	if err != nil {
		panic(fmt.Errorf("failed to open cache store: %w", err))
	}
	artifactBlobs, err := openStore(ctx, cfg.Storage, cfg.Storage.Artifacts, filepath.Join(runDir, "artifacts"))
	if err != nil {
		panic(fmt.Errorf("failed to open artifact store: %w", err))
	}
	artifactStore := artifact.NewStore(artifactBlobs)

	reg := registry.New()
	mods := o.modules
	if len(mods) == 0 {
		mods = coreModules(moduleDeps{
			runner:    o.runner,
			mavenExe:  cfg.Storage.Maven.Executable,
			cache:     cache.New(cacheStore),
			artifacts: artifactStore,
		})
	}
	for _, mod := range mods {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(mods), "runners", reg.Names())

	// A mismatch between the workflow and the compiled runners is fatal.
	if err := reg.ValidateWorkflow(ctx, wf); err != nil {
		panic(err)
	}
	logger.Debug("Workflow validation passed.")

	recorder := events.NewRecorder()
	pubs := &fanout{pubs: events.Multi{recorder}}
	for _, p := range o.pubs {
		pubs.add(p)
	}

	exec, err := executor.New(executor.Options{
		Workflow:  wf,
		Converter: converter,
		Registry:  reg,
		Inputs:    inputs,
		Secrets:   secretSet,
		RunID:     runID,
		RunDir:    filepath.Join(runDir, "jobs"),
		Source:    cfg.Source,
		Workers:   cfg.WorkerCount,
		Publisher: pubs,
	})
	if err != nil {
		panic(fmt.Errorf("failed to plan workflow: %w", err))
	}
	logger.Debug("Run planned.", "run_id", runID, "order", exec.Order())

	return &App{
		ctx:        ctx,
		outW:       outW,
		logger:     logger,
		config:     cfg,
		registry:   reg,
		model:      model,
		converter:  converter,
		secrets:    secretSet,
		inputs:     inputs,
		runID:      runID,
		runDir:     runDir,
		artifacts:  artifactStore,
		executor:   exec,
		recorder:   recorder,
		publishers: pubs,
	}
}

// openStore opens the blob store selected by b. The fs backend falls back to
// defaultDir when no directory is configured.
func openStore(ctx context.Context, sc StorageConfig, b BackendConfig, defaultDir string) (blob.Store, error) {
	switch b.Backend {
	case BackendMinio:
		return blob.NewMinioStore(ctx, sc.MinioConfig(b))
	case BackendMemory:
		return blob.NewMemoryStore(), nil
	case "", BackendFS:
		dir := b.Dir
		if dir == "" {
			dir = defaultDir
		}
		return blob.NewFSStore(dir)
	default:
		return nil, fmt.Errorf("unknown backend %q", b.Backend)
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// RunID identifies this run in logs, events and directory names.
func (a *App) RunID() string {
	return a.runID
}

// RunDir is the directory holding job workspaces and per-run storage.
func (a *App) RunDir() string {
	return a.runDir
}

// Inputs returns the resolved workflow inputs.
func (a *App) Inputs() map[string]string {
	return a.inputs
}

// Result returns the outcome of the last Run, or nil before it.
func (a *App) Result() *executor.RunResult {
	return a.result
}

// Status returns the run state as seen by the /status endpoint.
func (a *App) Status() events.Snapshot {
	return a.recorder.Snapshot()
}

// fanout forwards events to a list of publishers that may grow while the run
// is being prepared.
type fanout struct {
	mu   sync.RWMutex
	pubs events.Multi
}

func (f *fanout) add(p events.Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, p)
}

// Publish implements events.Publisher.
func (f *fanout) Publish(ctx context.Context, e events.Event) {
	f.mu.RLock()
	pubs := f.pubs
	f.mu.RUnlock()
	pubs.Publish(ctx, e)
}
