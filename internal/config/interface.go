package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Loader is the interface for a format-specific workflow loader.
type Loader interface {
	// Load reads workflow definitions from the given paths, translates them
	// into the format-agnostic model, and returns a matching Converter. With
	// no paths it loads the built-in workflow.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the bridge between unevaluated configuration expressions and
// the Go values runners consume.
type Converter interface {
	// Functions returns the expression functions available to steps running
	// in the given working directory.
	Functions(workDir string) map[string]function.Function

	// Sensitive wraps a secret string so that it can only flow into
	// positions that accept sensitive values.
	Sensitive(v string) cty.Value

	// DecodeArguments evaluates a step's 'arguments' and decodes them into
	// the runner's input struct.
	DecodeArguments(args map[string]hcl.Expression, evalCtx *hcl.EvalContext, target any) error

	// EvalStrings evaluates a set of string-valued attributes. Sensitive
	// values are rejected unless allowSensitive is set.
	EvalStrings(exprs map[string]hcl.Expression, evalCtx *hcl.EvalContext, allowSensitive bool) (map[string]string, error)

	// EvalBool evaluates a condition. A nil expression is true.
	EvalBool(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error)
}
