package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a workflow file may contain.
type fileRoot struct {
	Workflows []*WorkflowBlock `hcl:"workflow,block"`
	Jobs      []*JobBlock      `hcl:"job,block"`
}

// WorkflowBlock is the invocation contract of a workflow.
type WorkflowBlock struct {
	Name    string         `hcl:"name,label"`
	Inputs  []*InputBlock  `hcl:"input,block"`
	Secrets []*SecretBlock `hcl:"secret,block"`
	Outputs []*OutputBlock `hcl:"output,block"`
}

// InputBlock declares a caller-supplied string input.
type InputBlock struct {
	Name        string  `hcl:"name,label"`
	Description string  `hcl:"description,optional"`
	Default     *string `hcl:"default,optional"`
	Required    bool    `hcl:"required,optional"`
}

// SecretBlock declares a caller-supplied credential.
type SecretBlock struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
	Required    bool   `hcl:"required,optional"`
}

// OutputBlock declares a workflow output.
type OutputBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Value       hcl.Expression `hcl:"value"`
}

// JobBlock is a `job` block.
type JobBlock struct {
	Name    string       `hcl:"name,label"`
	Needs   []string     `hcl:"needs,optional"`
	Env     *AttrBlock   `hcl:"env,block"`
	Outputs *AttrBlock   `hcl:"outputs,block"`
	Steps   []*StepBlock `hcl:"step,block"`
}

// StepBlock is a `step` block inside a job.
type StepBlock struct {
	ID              string         `hcl:"id,label"`
	Uses            string         `hcl:"uses"`
	Condition       hcl.Expression `hcl:"condition,optional"`
	ContinueOnError bool           `hcl:"continue_on_error,optional"`
	Env             *AttrBlock     `hcl:"env,block"`
	Arguments       *AttrBlock     `hcl:"arguments,block"`
}

// AttrBlock captures a block made only of free-form attributes, such as
// `arguments`, `env` and `outputs`.
type AttrBlock struct {
	Body hcl.Body `hcl:",remain"`
}
