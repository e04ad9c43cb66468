package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/dag"
	"github.com/vk/mvnflow/internal/events"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/secrets"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// Options configures an Executor.
type Options struct {
	Workflow  *config.Workflow
	Converter config.Converter
	Registry  *registry.Registry
	// Inputs are the resolved workflow inputs.
	Inputs  map[string]string
	Secrets *secrets.Set
	RunID   string
	// RunDir holds one directory per job.
	RunDir string
	// Source is the project the checkout runner copies from.
	Source    string
	Workers   int
	Publisher events.Publisher
	// Now is used for timestamps; tests may replace it.
	Now func() time.Time
}

// Executor runs the jobs of one workflow run.
type Executor struct {
	opts  Options
	graph *dag.Graph
	order []string
	jobs  map[string]*jobState
	wg    sync.WaitGroup
}

// jobState is the mutable scheduling state of a job.
type jobState struct {
	job      *config.Job
	result   *JobResult
	state    atomic.Int32
	depCount atomic.Int32
	// skipOnce ensures a job is skipped and released exactly once.
	skipOnce sync.Once
}

func (s *jobState) setState(st Status) { s.state.Store(int32(st)) }
func (s *jobState) getState() Status   { return Status(s.state.Load()) }

// New builds the job graph. Unknown needs and cycles are errors.
func New(opts Options) (*Executor, error) {
	if opts.Workflow == nil || opts.Converter == nil || opts.Registry == nil {
		return nil, fmt.Errorf("executor needs a workflow, a converter and a registry")
	}
	if opts.RunDir == "" {
		return nil, fmt.Errorf("executor needs a run directory")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.NewSet()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := dag.New()
	jobs := make(map[string]*jobState, len(opts.Workflow.Jobs))
	for _, j := range opts.Workflow.Jobs {
		if _, dup := jobs[j.Name]; dup {
			return nil, fmt.Errorf("job '%s' is declared more than once", j.Name)
		}
		g.AddNode(j.Name)
		jobs[j.Name] = &jobState{job: j, result: &JobResult{Name: j.Name, Outputs: map[string]string{}}}
	}
	for _, j := range opts.Workflow.Jobs {
		for _, need := range j.Needs {
			if err := g.AddEdge(need, j.Name); err != nil {
				return nil, fmt.Errorf("job '%s' needs '%s': %w", j.Name, need, err)
			}
		}
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	return &Executor{opts: opts, graph: g, order: order, jobs: jobs}, nil
}

// Order returns the job names in the order they would run sequentially.
func (e *Executor) Order() []string {
	return append([]string(nil), e.order...)
}

// Run executes every job and evaluates the workflow outputs. The returned
// error names the failed jobs and wraps the first root cause; the result is
// returned in every case.
func (e *Executor) Run(ctx context.Context) (*RunResult, error) {
	logger := ctxlog.FromContext(ctx).With("run_id", e.opts.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)
	e.publish(ctx, events.Event{Kind: events.RunStarted})

	readyChan := make(chan *jobState, len(e.jobs))
	for _, name := range e.order {
		js := e.jobs[name]
		deps, _ := e.graph.Dependencies(name)
		js.depCount.Store(int32(len(deps)))
		if len(deps) == 0 {
			logger.Debug("Found root job.", "job", name)
			readyChan <- js
		}
	}

	e.wg.Add(len(e.jobs))
	logger.Debug("Starting worker pool.", "workers", e.opts.Workers)
	for i := 0; i < e.opts.Workers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all jobs to complete...", "jobs", len(e.jobs))
	e.wg.Wait()
	close(readyChan)

	res := &RunResult{
		ID:      e.opts.RunID,
		Status:  Succeeded,
		Jobs:    make(map[string]*JobResult, len(e.jobs)),
		Order:   e.Order(),
		Outputs: map[string]string{},
	}
	var failedJobs []string
	var rootCause error
	for _, name := range e.order {
		js := e.jobs[name]
		js.result.Status = js.getState()
		res.Jobs[name] = js.result
		switch js.result.Status {
		case Failed:
			res.Status = Failed
			failedJobs = append(failedJobs, name)
			if rootCause == nil || (errors.Is(rootCause, context.Canceled) && !errors.Is(js.result.Err, context.Canceled)) {
				rootCause = js.result.Err
			}
		case Skipped:
			res.Status = Failed
		}
	}

	outputs, outErr := e.evalWorkflowOutputs(res)
	if outErr != nil {
		if res.Status == Succeeded {
			res.Status = Failed
			rootCause = outErr
		} else {
			logger.Debug("Workflow outputs incomplete after failed run.", "error", outErr)
		}
	}
	res.Outputs = outputs

	e.publish(ctx, events.Event{Kind: events.RunFinished, Status: res.Status.String(), Outputs: res.Outputs})
	switch {
	case len(failedJobs) > 0:
		logger.Error("❌ Run failed.", "failed_jobs", failedJobs)
		return res, fmt.Errorf("execution failed for %s: %w", strings.Join(failedJobs, ", "), rootCause)
	case rootCause != nil:
		logger.Error("❌ Run failed.", "error", rootCause)
		return res, rootCause
	case res.Status != Succeeded:
		// Every job was skipped without a failing ancestor: the run was
		// cancelled before anything started.
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("run cancelled: %w", err)
		}
		return res, fmt.Errorf("run did not complete: %w", ErrSkipped)
	}
	logger.Info("✅ Run finished.", "jobs", len(e.jobs))
	return res, nil
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *jobState, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for js := range readyChan {
		if err := ctx.Err(); err != nil {
			e.skip(ctx, js, fmt.Errorf("%w: run cancelled: %w", ErrSkipped, err))
			continue
		}

		logger.Debug("Worker picked up job.", "workerID", workerID, "job", js.job.Name)
		js.setState(Running)
		if err := e.runJob(ctx, js); err != nil {
			js.result.Err = err
			js.setState(Failed)
			e.skipDependents(ctx, js)
			e.wg.Done()
			continue
		}
		js.setState(Succeeded)

		dependents, _ := e.graph.Dependents(js.job.Name)
		for _, name := range dependents {
			dep := e.jobs[name]
			if dep.depCount.Add(-1) == 0 {
				logger.Debug("Unlocking dependent job.", "job", name)
				readyChan <- dep
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// skip marks a job as skipped, releases it and cascades to its dependents.
func (e *Executor) skip(ctx context.Context, js *jobState, reason error) {
	js.skipOnce.Do(func() {
		js.result.Err = reason
		js.setState(Skipped)
		ctxlog.FromContext(ctx).Warn("⏭️ Skipping job.", "job", js.job.Name, "reason", reason)
		e.publish(ctx, events.Event{Kind: events.JobFinished, Job: js.job.Name, Status: Skipped.String(), Error: reason.Error()})
		e.wg.Done()
		e.skipDependents(ctx, js)
	})
}

// skipDependents skips every job downstream of js.
func (e *Executor) skipDependents(ctx context.Context, js *jobState) {
	dependents, _ := e.graph.Dependents(js.job.Name)
	for _, name := range dependents {
		reason := fmt.Errorf("%w: needed job '%s' did not succeed", ErrSkipped, js.job.Name)
		e.skip(ctx, e.jobs[name], reason)
	}
}

func (e *Executor) publish(ctx context.Context, ev events.Event) {
	ev.RunID = e.opts.RunID
	if ev.Time.IsZero() {
		ev.Time = e.opts.Now()
	}
	e.opts.Publisher.Publish(ctx, ev)
}
