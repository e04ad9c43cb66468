// Package depcache provides the `cache_restore` and `cache_save` runners
// around the content-keyed dependency cache.
package depcache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/vk/mvnflow/internal/cache"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Cache *cache.Cache
}

// RestoreInput defines the arguments for the cache_restore runner.
type RestoreInput struct {
	Path string `hcl:"path"`
	Key  string `hcl:"key"`
	// RestoreKeys are prefixes tried in order when Key has no entry.
	RestoreKeys []string `hcl:"restore_keys,optional"`
}

// SaveInput defines the arguments for the cache_save runner.
type SaveInput struct {
	Path string `hcl:"path"`
	Key  string `hcl:"key"`
}

// Restore extracts the best matching entry into the path.
func (m *Module) Restore(ctx context.Context, ws *workspace.Workspace, in *RestoreInput) (map[string]string, error) {
	res, err := m.Cache.Restore(ctx, in.Key, in.RestoreKeys, ws.Resolve(in.Path))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"cache_hit":   strconv.FormatBool(res.Exact),
		"matched_key": res.MatchedKey,
		"key":         in.Key,
	}, nil
}

// Save stores the path under the key. A missing path saves nothing.
func (m *Module) Save(ctx context.Context, ws *workspace.Workspace, in *SaveInput) (map[string]string, error) {
	if err := cache.ValidateKey(in.Key); err != nil {
		return nil, err
	}
	src := ws.Resolve(in.Path)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		ctxlog.FromContext(ctx).Warn("Cache path does not exist, nothing to save.", "path", in.Path)
		return map[string]string{"saved": "false"}, nil
	}
	saved, err := m.Cache.Save(ctx, in.Key, src)
	if err != nil {
		return nil, err
	}
	return map[string]string{"saved": strconv.FormatBool(saved)}, nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("cache_restore", registry.Typed(m.Restore))
	r.RegisterRunner("cache_save", registry.Typed(m.Save))
}
