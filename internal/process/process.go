// Package process runs external programs. Runners depend on the Runner
// interface so tests can substitute fake tools for mvn and java.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/vk/mvnflow/internal/ctxlog"
)

// Command describes one program invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is the complete environment of the process, in KEY=VALUE form.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result describes a finished process.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner. The process is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.WaitDelay = 5 * time.Second

	logger.Debug("Starting process.", "command", c.String(), "dir", c.Dir)
	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("command %q interrupted: %w", c.String(), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: c.String(), ExitCode: res.ExitCode}
		}
		return res, fmt.Errorf("command %q failed to start: %w", c.String(), err)
	}
	logger.Debug("Process finished.", "command", c.String(), "duration", res.Duration)
	return res, nil
}
