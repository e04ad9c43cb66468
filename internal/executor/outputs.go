package executor

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// evalWorkflowOutputs evaluates the workflow outputs against the outputs
// of every finished job. Errors for individual outputs are collected; the
// outputs that did evaluate are returned either way.
func (e *Executor) evalWorkflowOutputs(res *RunResult) (map[string]string, error) {
	out := map[string]string{}
	if len(e.opts.Workflow.Outputs) == 0 {
		return out, nil
	}

	jobs := make(map[string]cty.Value, len(res.Jobs))
	for name, jr := range res.Jobs {
		jobs[name] = cty.ObjectVal(map[string]cty.Value{
			"outputs": stringObject(jr.Outputs),
			"result":  cty.StringVal(jr.Status.String()),
		})
	}
	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{
		"inputs": stringObject(e.opts.Inputs),
		"jobs":   objectOrEmpty(jobs),
		"run":    cty.ObjectVal(map[string]cty.Value{"id": cty.StringVal(e.opts.RunID)}),
	}}

	var errs []string
	for _, o := range e.opts.Workflow.Outputs {
		v, err := e.opts.Converter.EvalStrings(map[string]hcl.Expression{o.Name: o.Value}, evalCtx, false)
		if err != nil {
			errs = append(errs, fmt.Sprintf("output %v", err))
			continue
		}
		out[o.Name] = v[o.Name]
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("workflow outputs: %s", strings.Join(errs, "; "))
	}
	return out, nil
}
