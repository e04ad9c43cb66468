package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/events"
	"github.com/vk/mvnflow/internal/workspace"
)

// runJob executes the steps of one job in a fresh workspace.
func (e *Executor) runJob(ctx context.Context, js *jobState) (err error) {
	job := js.job
	ctx, logger := ctxlog.With(ctx, "job", job.Name)
	result := js.result
	result.Started = e.opts.Now()
	logger.Info("▶️ Starting job")
	e.publish(ctx, events.Event{Kind: events.JobStarted, Job: job.Name, Status: Running.String()})

	defer func() {
		result.Ended = e.opts.Now()
		status := Succeeded
		ev := events.Event{Kind: events.JobFinished, Job: job.Name, Outputs: result.Outputs}
		if err != nil {
			status = Failed
			ev.Error = err.Error()
			logger.Error("❌ Job failed.", "error", err, "duration", result.Ended.Sub(result.Started))
		} else {
			logger.Info("✅ Finished job", "duration", result.Ended.Sub(result.Started))
		}
		ev.Status = status.String()
		e.publish(ctx, ev)
	}()

	ws, err := workspace.New(e.opts.RunDir, e.opts.RunID, job.Name, e.opts.Source)
	if err != nil {
		return err
	}
	scope := e.newScope(job, ws)

	if len(job.Env) > 0 {
		env, err := e.opts.Converter.EvalStrings(job.Env, scope.evalContext(), false)
		if err != nil {
			return fmt.Errorf("job env: %w", err)
		}
		for k, v := range env {
			ws.SetEnv(k, v)
		}
	}

	for _, step := range job.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step '%s' not started: %w", step.ID, err)
		}
		sr := e.runStep(ctx, ws, scope, step)
		result.Steps = append(result.Steps, sr)
		scope.recordStep(sr)
		if sr.Outcome != OutcomeFailure {
			continue
		}
		if step.ContinueOnError {
			logger.Warn("Step failed, continuing.", "step", step.ID, "error", sr.Err)
			continue
		}
		return fmt.Errorf("step '%s': %w", step.ID, sr.Err)
	}

	if len(job.Outputs) > 0 {
		outputs, err := e.opts.Converter.EvalStrings(job.Outputs, scope.evalContext(), false)
		if err != nil {
			return fmt.Errorf("job outputs: %w", err)
		}
		result.Outputs = outputs
	}
	return nil
}

// runStep evaluates and runs one step. Failures are reported in the result,
// never returned, so the caller can apply continue_on_error.
func (e *Executor) runStep(ctx context.Context, ws *workspace.Workspace, scope *scope, step *config.Step) *StepResult {
	ctx, logger := ctxlog.With(ctx, "step", step.ID, "uses", step.Uses)
	sr := &StepResult{ID: step.ID, Uses: step.Uses, Outputs: map[string]string{}}
	start := e.opts.Now()
	defer func() {
		sr.Duration = e.opts.Now().Sub(start)
		ev := events.Event{Kind: events.StepFinished, Job: ws.Job, Step: step.ID, Status: string(sr.Outcome), Outputs: sr.Outputs}
		if sr.Err != nil {
			ev.Error = sr.Err.Error()
		}
		e.publish(ctx, ev)
	}()

	fail := func(err error) *StepResult {
		sr.Outcome = OutcomeFailure
		sr.Err = err
		logger.Error("❌ Step failed.", "error", err)
		return sr
	}

	evalCtx := scope.evalContext()
	run, err := e.opts.Converter.EvalBool(step.Condition, evalCtx)
	if err != nil {
		return fail(fmt.Errorf("condition: %w", err))
	}
	if !run {
		sr.Outcome = OutcomeSkipped
		logger.Info("⏭️ Skipping step, condition is false.")
		return sr
	}

	handler, ok := e.opts.Registry.Runner(step.Uses)
	if !ok {
		return fail(fmt.Errorf("unknown runner '%s'", step.Uses))
	}

	var input any
	if handler.NewInput != nil {
		input = handler.NewInput()
		if err := e.opts.Converter.DecodeArguments(step.Arguments, evalCtx, input); err != nil {
			return fail(fmt.Errorf("arguments: %w", err))
		}
	} else if len(step.Arguments) > 0 {
		return fail(fmt.Errorf("runner '%s' takes no arguments", step.Uses))
	}

	if len(step.Env) > 0 {
		env, err := e.opts.Converter.EvalStrings(step.Env, evalCtx, true)
		if err != nil {
			return fail(fmt.Errorf("env: %w", err))
		}
		ws.SetStepEnv(env)
		defer ws.SetStepEnv(nil)
	}

	logger.Info("▶️ Starting step")
	outputs, err := handler.Fn(ctx, ws, input)
	for k, v := range outputs {
		sr.Outputs[k] = v
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		return fail(err)
	}
	sr.Outcome = OutcomeSuccess
	logger.Info("✅ Finished step", "duration", e.opts.Now().Sub(start))
	return sr
}
