package executor

import (
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/workspace"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// scope accumulates the expression variables of one job. It is owned by the
// goroutine running the job.
type scope struct {
	vars      map[string]cty.Value
	functions map[string]function.Function
	ws        *workspace.Workspace
	steps     map[string]cty.Value
}

func (e *Executor) newScope(job *config.Job, ws *workspace.Workspace) *scope {
	needs := make(map[string]cty.Value, len(job.Needs))
	for _, name := range job.Needs {
		dep := e.jobs[name]
		needs[name] = cty.ObjectVal(map[string]cty.Value{
			"outputs": stringObject(dep.result.Outputs),
			"result":  cty.StringVal(dep.getState().String()),
		})
	}

	secretVals := make(map[string]cty.Value)
	for _, name := range e.opts.Secrets.Names() {
		v, _ := e.opts.Secrets.Value(name)
		secretVals[name] = e.opts.Converter.Sensitive(v)
	}
	// Declared secrets that were not provided still resolve, to "".
	for _, s := range e.opts.Workflow.Secrets {
		if _, ok := secretVals[s.Name]; !ok {
			secretVals[s.Name] = e.opts.Converter.Sensitive("")
		}
	}

	return &scope{
		ws:        ws,
		functions: e.opts.Converter.Functions(ws.Dir),
		steps:     map[string]cty.Value{},
		vars: map[string]cty.Value{
			"inputs":  stringObject(e.opts.Inputs),
			"secrets": objectOrEmpty(secretVals),
			"needs":   objectOrEmpty(needs),
			"run":     cty.ObjectVal(map[string]cty.Value{"id": cty.StringVal(e.opts.RunID)}),
			"runner": cty.ObjectVal(map[string]cty.Value{
				"os":        cty.StringVal(RunnerOS(runtime.GOOS)),
				"arch":      cty.StringVal(RunnerArch(runtime.GOARCH)),
				"temp":      cty.StringVal(ws.Temp),
				"home":      cty.StringVal(ws.Home),
				"workspace": cty.StringVal(ws.Dir),
			}),
		},
	}
}

func (s *scope) recordStep(sr *StepResult) {
	s.steps[sr.ID] = cty.ObjectVal(map[string]cty.Value{
		"outputs": stringObject(sr.Outputs),
		"outcome": cty.StringVal(string(sr.Outcome)),
	})
}

// evalContext snapshots the scope. env reflects the job environment as
// exported so far.
func (s *scope) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(s.vars)+2)
	for k, v := range s.vars {
		vars[k] = v
	}
	steps := make(map[string]cty.Value, len(s.steps))
	for k, v := range s.steps {
		steps[k] = v
	}
	vars["steps"] = objectOrEmpty(steps)
	vars["env"] = stringObject(s.ws.Env())
	return &hcl.EvalContext{Variables: vars, Functions: s.functions}
}

// RunnerOS names the host OS the way cache keys spell it.
func RunnerOS(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	default:
		return goos
	}
}

// RunnerArch names the host architecture.
func RunnerArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "X64"
	case "386":
		return "X86"
	case "arm64":
		return "ARM64"
	case "arm":
		return "ARM"
	default:
		return goarch
	}
}

func stringObject(m map[string]string) cty.Value {
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return objectOrEmpty(vals)
}

func objectOrEmpty(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}
