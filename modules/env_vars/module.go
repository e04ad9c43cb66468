// Package env_vars provides the `export_env` runner, which exports variables
// to every later step of the job.
package env_vars

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the export_env runner.
type Input struct {
	Values map[string]string `hcl:"values"`
}

// Export sets each value in the job environment.
func Export(ctx context.Context, ws *workspace.Workspace, input *Input) (map[string]string, error) {
	names := make([]string, 0, len(input.Values))
	for k := range input.Values {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			return nil, fmt.Errorf("invalid environment variable name %q", k)
		}
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		ws.SetEnv(k, input.Values[k])
	}
	ctxlog.FromContext(ctx).Debug("Exported environment.", "names", names)
	return map[string]string{"exported": strconv.Itoa(len(names))}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("export_env", registry.Typed(Export))
}
