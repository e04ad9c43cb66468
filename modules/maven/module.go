// Package maven provides the Maven runners: `maven_settings` materializes
// ~/.m2/settings.xml, `maven_metadata` resolves the project coordinates and
// `maven` runs goals.
package maven

import (
	"context"
	"errors"
	"strconv"

	"github.com/vk/mvnflow/internal/ctxlog"
	mvn "github.com/vk/mvnflow/internal/maven"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Client *mvn.Client
}

// SettingsInput defines the arguments for the maven_settings runner.
type SettingsInput struct {
	// File is copied when readable. Relative paths start at the workspace.
	File string `hcl:"file,optional"`
	// Inline is written verbatim when File cannot be read.
	Inline string `hcl:"inline,optional"`
}

// RunInput defines the arguments for the maven runner.
type RunInput struct {
	Goals []string `hcl:"goals"`
	Args  []string `hcl:"args,optional"`
}

// Settings writes the settings document into the job HOME.
func Settings(ctx context.Context, ws *workspace.Workspace, in *SettingsInput) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	candidate := ""
	if in.File != "" {
		candidate = ws.Resolve(in.File)
	}
	doc := mvn.ResolveSettings(candidate, in.Inline)
	if doc.FileErr != nil {
		logger.Warn("Settings file not usable, writing inline settings instead.", "file", in.File, "error", doc.FileErr)
	}
	p, err := mvn.WriteSettings(ws.Home, doc)
	if err != nil {
		return nil, err
	}
	logger.Info("Maven settings written.", "source", string(doc.Source), "bytes", len(doc.Content))
	return map[string]string{
		"source": string(doc.Source),
		"path":   ws.HomeRelative(p),
	}, nil
}

// Metadata resolves the project coordinates. Paths under the job HOME are
// reported in "~/..." form so other jobs can resolve them in their own HOME.
func (m *Module) Metadata(ctx context.Context, ws *workspace.Workspace) (map[string]string, error) {
	md, err := m.Client.Resolve(ctx, ws)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		"groupId":               md.GroupID,
		"artifactId":            md.ArtifactID,
		"version":               md.Version,
		"localRepository":       ws.HomeRelative(md.LocalRepository),
		"groupIdRepositoryPath": ws.HomeRelative(md.GroupIDRepositoryPath),
	}
	ctxlog.FromContext(ctx).Info("Resolved project metadata.", "coordinates", md.Coordinates.String(), "groupIdRepositoryPath", out["groupIdRepositoryPath"])
	return out, nil
}

// Run executes the configured goals.
func (m *Module) Run(ctx context.Context, ws *workspace.Workspace, in *RunInput) (map[string]string, error) {
	res, err := m.Client.Run(ctx, ws, mvn.RunOptions{Goals: in.Goals, Args: in.Args})
	if err != nil {
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			return map[string]string{"exit_code": strconv.Itoa(exitErr.ExitCode)}, err
		}
		return nil, err
	}
	return map[string]string{"exit_code": strconv.Itoa(res.ExitCode)}, nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("maven_settings", registry.Typed(Settings))
	r.RegisterRunner("maven_metadata", registry.NoInput(m.Metadata))
	r.RegisterRunner("maven", registry.Typed(m.Run))
}
