package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of a loaded workflow definition.
type Model struct {
	Workflow *Workflow
	// Files lists the source files the model was loaded from.
	Files []string
}

// Workflow is a named, reusable pipeline: its invocation contract plus the
// jobs it runs.
type Workflow struct {
	Name    string
	Inputs  []*Input
	Secrets []*Secret
	Outputs []*Output
	Jobs    []*Job
}

// Input is a string parameter supplied by the caller.
type Input struct {
	Name        string
	Description string
	Default     *string
	Required    bool
}

// Secret is a credential supplied by the caller through the environment.
type Secret struct {
	Name        string
	Description string
	Required    bool
}

// Output is a value the workflow exposes to its caller once all jobs ended.
type Output struct {
	Name        string
	Description string
	Value       hcl.Expression
}

// Job is an independently scheduled unit of work with its own isolated
// environment.
type Job struct {
	Name    string
	Needs   []string
	Env     map[string]hcl.Expression
	Outputs map[string]hcl.Expression
	Steps   []*Step
}

// Step is one invocation of a registered runner inside a job.
type Step struct {
	ID              string
	Uses            string
	Condition       hcl.Expression
	ContinueOnError bool
	Env             map[string]hcl.Expression
	Arguments       map[string]hcl.Expression
}

// Job returns the job with the given name.
func (w *Workflow) Job(name string) (*Job, bool) {
	for _, j := range w.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// ResolveInputs merges caller-provided values with declared defaults. Unknown
// names and missing required inputs are errors.
func (w *Workflow) ResolveInputs(provided map[string]string) (map[string]string, error) {
	declared := make(map[string]*Input, len(w.Inputs))
	for _, in := range w.Inputs {
		declared[in.Name] = in
	}

	var unknown []string
	for name := range provided {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown inputs: %s", strings.Join(unknown, ", "))
	}

	resolved := make(map[string]string, len(w.Inputs))
	var missing []string
	for _, in := range w.Inputs {
		if v, ok := provided[in.Name]; ok {
			resolved[in.Name] = v
			continue
		}
		if in.Default != nil {
			resolved[in.Name] = *in.Default
			continue
		}
		if in.Required {
			missing = append(missing, in.Name)
			continue
		}
		resolved[in.Name] = ""
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required inputs not provided: %s", strings.Join(missing, ", "))
	}
	return resolved, nil
}

// Validate checks structural invariants that do not need a registry: unique
// job and step names and needs that point at declared jobs.
func (w *Workflow) Validate() error {
	var errs []string
	jobs := make(map[string]struct{}, len(w.Jobs))
	for _, j := range w.Jobs {
		if _, dup := jobs[j.Name]; dup {
			errs = append(errs, fmt.Sprintf("job '%s' is declared more than once", j.Name))
		}
		jobs[j.Name] = struct{}{}
	}
	for _, j := range w.Jobs {
		for _, need := range j.Needs {
			if _, ok := jobs[need]; !ok {
				errs = append(errs, fmt.Sprintf("job '%s' needs unknown job '%s'", j.Name, need))
			}
			if need == j.Name {
				errs = append(errs, fmt.Sprintf("job '%s' needs itself", j.Name))
			}
		}
		steps := make(map[string]struct{}, len(j.Steps))
		for _, s := range j.Steps {
			if _, dup := steps[s.ID]; dup {
				errs = append(errs, fmt.Sprintf("job '%s': step '%s' is declared more than once", j.Name, s.ID))
			}
			steps[s.ID] = struct{}{}
			if s.Uses == "" {
				errs = append(errs, fmt.Sprintf("job '%s': step '%s' has no 'uses'", j.Name, s.ID))
			}
		}
	}
	seen := make(map[string]struct{}, len(w.Inputs)+len(w.Secrets))
	for _, in := range w.Inputs {
		if _, dup := seen["input."+in.Name]; dup {
			errs = append(errs, fmt.Sprintf("input '%s' is declared more than once", in.Name))
		}
		seen["input."+in.Name] = struct{}{}
	}
	for _, s := range w.Secrets {
		if _, dup := seen["secret."+s.Name]; dup {
			errs = append(errs, fmt.Sprintf("secret '%s' is declared more than once", s.Name))
		}
		seen["secret."+s.Name] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("workflow '%s' is invalid:\n- %s", w.Name, strings.Join(errs, "\n- "))
	}
	return nil
}
