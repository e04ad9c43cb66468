// This file translates decoded HCL schema structs into the format-agnostic
// model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
)

func translateWorkflow(ctx context.Context, wb *WorkflowBlock, jobs []*JobBlock) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx).With("workflow", wb.Name)
	logger.Debug("Translating HCL workflow to internal config model.")

	wf := &config.Workflow{Name: wb.Name}
	for _, in := range wb.Inputs {
		wf.Inputs = append(wf.Inputs, &config.Input{
			Name:        in.Name,
			Description: in.Description,
			Default:     in.Default,
			Required:    in.Required,
		})
	}
	for _, s := range wb.Secrets {
		wf.Secrets = append(wf.Secrets, &config.Secret{
			Name:        s.Name,
			Description: s.Description,
			Required:    s.Required,
		})
	}
	for _, out := range wb.Outputs {
		wf.Outputs = append(wf.Outputs, &config.Output{
			Name:        out.Name,
			Description: out.Description,
			Value:       out.Value,
		})
	}
	for _, jb := range jobs {
		job, err := translateJob(ctx, jb)
		if err != nil {
			return nil, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	return wf, nil
}

func translateJob(ctx context.Context, jb *JobBlock) (*config.Job, error) {
	logger := ctxlog.FromContext(ctx).With("job", jb.Name)

	env, err := extractBodyAttributes(jb.Env)
	if err != nil {
		return nil, fmt.Errorf("job '%s': env: %w", jb.Name, err)
	}
	outputs, err := extractBodyAttributes(jb.Outputs)
	if err != nil {
		return nil, fmt.Errorf("job '%s': outputs: %w", jb.Name, err)
	}

	job := &config.Job{
		Name:    jb.Name,
		Needs:   jb.Needs,
		Env:     env,
		Outputs: outputs,
	}
	for _, sb := range jb.Steps {
		stepEnv, err := extractBodyAttributes(sb.Env)
		if err != nil {
			return nil, fmt.Errorf("job '%s', step '%s': env: %w", jb.Name, sb.ID, err)
		}
		args, err := extractBodyAttributes(sb.Arguments)
		if err != nil {
			return nil, fmt.Errorf("job '%s', step '%s': arguments: %w", jb.Name, sb.ID, err)
		}
		step := &config.Step{
			ID:              sb.ID,
			Uses:            sb.Uses,
			ContinueOnError: sb.ContinueOnError,
			Env:             stepEnv,
			Arguments:       args,
		}
		if isExprDefined(sb.Condition) {
			step.Condition = sb.Condition
		}
		job.Steps = append(job.Steps, step)
	}
	logger.Debug("Translated job.", "steps", len(job.Steps), "needs", job.Needs)
	return job, nil
}

// isExprDefined reports whether an optional expression attribute was present
// in the source. The decoder fills omitted optional expressions with
// zero-width placeholders, so a nil check alone is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	return rng.End.Byte > rng.Start.Byte
}

// extractBodyAttributes converts an attribute-only block into a map of
// expressions. A nil block yields a nil map.
func extractBodyAttributes(block *AttrBlock) (map[string]hcl.Expression, error) {
	if block == nil || block.Body == nil {
		return nil, nil
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	exprMap := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprMap[name] = attr.Expr
	}
	return exprMap, nil
}
