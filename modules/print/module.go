// Package print provides the `print` runner, which logs values. It is handy
// for inspecting outputs while writing a workflow.
package print

import (
	"context"
	"sort"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print runner.
type Input struct {
	Values map[string]string `hcl:"values"`
}

// Print logs each value on its own line, sorted by key.
func Print(ctx context.Context, _ *workspace.Workspace, input *Input) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	if len(input.Values) == 0 {
		logger.Info("Nothing to print.")
		return nil, nil
	}

	keys := make([]string, 0, len(input.Values))
	for k := range input.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		logger.Info("Value.", "key", k, "value", input.Values[k])
	}
	return nil, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("print", registry.Typed(Print))
}
