// Package shell provides the `shell` runner for ad-hoc commands.
package shell

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// DefaultShell interprets scripts when no shell is given.
const DefaultShell = "sh"

// Module implements the registry.Module interface for this package.
type Module struct {
	Runner process.Runner
}

// Input defines the arguments for the shell runner.
type Input struct {
	Run   string `hcl:"run"`
	Shell string `hcl:"shell,optional"`
}

// Run executes the script with `<shell> -e -c` in the job directory.
func (m *Module) Run(ctx context.Context, ws *workspace.Workspace, in *Input) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	name := in.Shell
	if name == "" {
		name = DefaultShell
	}
	exe, err := ws.LookPath(name)
	if err != nil {
		return nil, err
	}

	stdout := process.NewLineWriter(ctx, logger, slog.LevelInfo, "stream", "stdout")
	stderr := process.NewLineWriter(ctx, logger, slog.LevelWarn, "stream", "stderr")
	defer stdout.Close()
	defer stderr.Close()

	res, err := m.Runner.Run(ctx, process.Command{
		Name:   exe,
		Args:   []string{"-e", "-c", in.Run},
		Dir:    ws.Dir,
		Env:    ws.Environ(nil),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			return map[string]string{"exit_code": strconv.Itoa(exitErr.ExitCode)}, err
		}
		return nil, err
	}
	return map[string]string{"exit_code": strconv.Itoa(res.ExitCode)}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("shell", registry.Typed(m.Run))
}
