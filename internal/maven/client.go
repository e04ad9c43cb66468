package maven

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/workspace"
)

// DefaultExecutable is used when no executable is configured and the
// project carries no wrapper.
const DefaultExecutable = "mvn"

// Expressions queried by Resolve.
const (
	ExprGroupID         = "project.groupId"
	ExprArtifactID      = "project.artifactId"
	ExprVersion         = "project.version"
	ExprLocalRepository = "settings.localRepository"
)

// Metadata is what Resolve learns about the checked out project.
type Metadata struct {
	Coordinates
	LocalRepository       string
	GroupIDRepositoryPath string
}

// Client invokes Maven inside a job workspace.
type Client struct {
	Runner process.Runner
	// Executable overrides the mvn binary. When empty, ./mvnw in the
	// workspace is preferred over mvn on PATH.
	Executable string
}

// NewClient creates a client.
func NewClient(runner process.Runner, executable string) *Client {
	return &Client{Runner: runner, Executable: executable}
}

func (c *Client) executable(ws *workspace.Workspace) (string, error) {
	if c.Executable != "" {
		if strings.ContainsRune(c.Executable, filepath.Separator) {
			return ws.Resolve(c.Executable), nil
		}
		return ws.LookPath(c.Executable)
	}
	wrapper := filepath.Join(ws.Dir, "mvnw")
	if info, err := os.Stat(wrapper); err == nil && info.Mode()&0o111 != 0 {
		return wrapper, nil
	}
	return ws.LookPath(DefaultExecutable)
}

// environ points Maven's user.home at the job HOME so ~/.m2 resolves inside
// the job, whatever the passwd entry says.
func environ(ws *workspace.Workspace, extra map[string]string) []string {
	merged := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		merged[k] = v
	}
	opts := "-Duser.home=" + ws.Home
	if existing, ok := merged["MAVEN_OPTS"]; ok && existing != "" {
		opts = existing + " " + opts
	} else if existing, ok := ws.Getenv("MAVEN_OPTS"); ok && existing != "" {
		opts = existing + " " + opts
	}
	merged["MAVEN_OPTS"] = opts
	return ws.Environ(merged)
}

// Evaluate prints a single expression with the help plugin.
func (c *Client) Evaluate(ctx context.Context, ws *workspace.Workspace, expression string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	exe, err := c.executable(ws)
	if err != nil {
		return "", err
	}
	var stdout bytes.Buffer
	stderr := process.NewLineWriter(ctx, logger, slog.LevelWarn, "stream", "stderr")
	defer stderr.Close()

	cmd := process.Command{
		Name:   exe,
		Args:   []string{"help:evaluate", "-q", "-DforceStdout", "-Dexpression=" + expression, "--batch-mode"},
		Dir:    ws.Dir,
		Env:    environ(ws, nil),
		Stdout: &stdout,
		Stderr: stderr,
	}
	if _, err := c.Runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("evaluate %s: %w", expression, err)
	}
	value := strings.TrimSpace(stdout.String())
	if value == "" || strings.HasPrefix(value, "null object or invalid expression") {
		return "", fmt.Errorf("evaluate %s: no value", expression)
	}
	if strings.ContainsAny(value, "\r\n") {
		return "", fmt.Errorf("evaluate %s: unexpected multi-line output", expression)
	}
	return value, nil
}

// Resolve queries the project coordinates and the local repository and
// derives the group directory inside it.
func (c *Client) Resolve(ctx context.Context, ws *workspace.Workspace) (*Metadata, error) {
	values := make(map[string]string, 4)
	for _, expr := range []string{ExprGroupID, ExprArtifactID, ExprVersion, ExprLocalRepository} {
		v, err := c.Evaluate(ctx, ws, expr)
		if err != nil {
			return nil, err
		}
		values[expr] = v
	}
	md := &Metadata{
		Coordinates: Coordinates{
			GroupID:    values[ExprGroupID],
			ArtifactID: values[ExprArtifactID],
			Version:    values[ExprVersion],
		},
		LocalRepository: values[ExprLocalRepository],
	}
	if err := md.Coordinates.Validate(); err != nil {
		return nil, fmt.Errorf("project coordinates: %w", err)
	}
	groupPath, err := GroupIDRepositoryPath(md.LocalRepository, md.GroupID)
	if err != nil {
		return nil, err
	}
	md.GroupIDRepositoryPath = groupPath
	return md, nil
}

// RunOptions tunes Client.Run.
type RunOptions struct {
	Goals []string
	Args  []string
	// Env is added on top of the job environment.
	Env map[string]string
}

// Run executes goals with args, streaming output into the log.
func (c *Client) Run(ctx context.Context, ws *workspace.Workspace, opts RunOptions) (process.Result, error) {
	logger := ctxlog.FromContext(ctx)
	exe, err := c.executable(ws)
	if err != nil {
		return process.Result{}, err
	}
	if len(opts.Goals) == 0 {
		return process.Result{}, fmt.Errorf("no maven goals given")
	}

	stdout := process.NewLineWriter(ctx, logger, slog.LevelInfo, "stream", "stdout")
	stderr := process.NewLineWriter(ctx, logger, slog.LevelWarn, "stream", "stderr")
	defer stdout.Close()
	defer stderr.Close()

	args := append([]string{"--batch-mode"}, opts.Goals...)
	args = append(args, opts.Args...)
	cmd := process.Command{
		Name:   exe,
		Args:   args,
		Dir:    ws.Dir,
		Env:    environ(ws, opts.Env),
		Stdout: stdout,
		Stderr: stderr,
	}
	logger.Info("Running maven.", "goals", opts.Goals, "args", opts.Args)
	return c.Runner.Run(ctx, cmd)
}
