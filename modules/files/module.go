// Package files provides the `remove` runner.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// RemoveInput defines the arguments for the remove runner.
type RemoveInput struct {
	Paths []string `hcl:"paths"`
	// IgnoreMissing turns an absent path into a no-op instead of an error.
	IgnoreMissing bool `hcl:"ignore_missing,optional"`
}

// Remove deletes every path recursively. Paths must stay inside the job's
// directories.
func Remove(ctx context.Context, ws *workspace.Workspace, in *RemoveInput) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	removed := 0
	for _, p := range in.Paths {
		if p == "" {
			return nil, fmt.Errorf("empty path")
		}
		target := ws.Resolve(p)
		if !inside(ws, target) {
			return nil, fmt.Errorf("path %q is outside the job directories", p)
		}
		if _, err := os.Lstat(target); err != nil {
			if errors.Is(err, fs.ErrNotExist) && in.IgnoreMissing {
				logger.Debug("Path already absent.", "path", p)
				continue
			}
			return nil, fmt.Errorf("remove %s: %w", p, err)
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("remove %s: %w", p, err)
		}
		logger.Info("Removed path.", "path", p)
		removed++
	}
	return map[string]string{"removed": strconv.Itoa(removed)}, nil
}

func inside(ws *workspace.Workspace, target string) bool {
	for _, root := range []string{ws.Dir, ws.Home, ws.Temp} {
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel) {
			return true
		}
	}
	return false
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("remove", registry.Typed(Remove))
}
