// Package artifacts provides the `artifact_upload` and `artifact_download`
// runners that move build output between jobs.
package artifacts

import (
	"context"
	"strconv"

	"github.com/vk/mvnflow/internal/artifact"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Store *artifact.Store
}

// UploadInput defines the arguments for the artifact_upload runner.
type UploadInput struct {
	Name          string   `hcl:"name"`
	Path          string   `hcl:"path"`
	Exclude       []string `hcl:"exclude,optional"`
	RetentionDays int      `hcl:"retention_days,optional"`
}

// DownloadInput defines the arguments for the artifact_download runner.
type DownloadInput struct {
	Name string `hcl:"name"`
	Path string `hcl:"path"`
}

// Upload packs the path into a named bundle.
func (m *Module) Upload(ctx context.Context, ws *workspace.Workspace, in *UploadInput) (map[string]string, error) {
	b, err := m.Store.Upload(ctx, in.Name, ws.Resolve(in.Path), artifact.UploadOptions{
		Exclude:       in.Exclude,
		RetentionDays: in.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	return bundleOutputs(b), nil
}

// Download replaces the path with the content of a named bundle.
func (m *Module) Download(ctx context.Context, ws *workspace.Workspace, in *DownloadInput) (map[string]string, error) {
	b, err := m.Store.Download(ctx, in.Name, ws.Resolve(in.Path))
	if err != nil {
		return nil, err
	}
	return bundleOutputs(b), nil
}

func bundleOutputs(b *artifact.Bundle) map[string]string {
	return map[string]string{
		"file_count": strconv.Itoa(b.Files),
		"size":       strconv.FormatInt(b.Size, 10),
	}
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("artifact_upload", registry.Typed(m.Upload))
	r.RegisterRunner("artifact_download", registry.Typed(m.Download))
}
