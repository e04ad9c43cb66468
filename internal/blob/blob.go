// Package blob is the object storage layer shared by the dependency cache and
// the artifact store. Backends are a local directory, a MinIO (or any S3
// compatible) bucket and process memory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("object not found")

// Object describes a stored object.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
	// Metadata is always populated by Stat and Get. List may leave it nil.
	Metadata map[string]string
}

// Store is a flat key/value object store. Keys use forward slashes.
type Store interface {
	// Put stores r under key. size may be -1 when unknown. Metadata keys
	// are lower-case.
	Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Stat(ctx context.Context, key string) (Object, error)
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape the store's namespace.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid object key %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("invalid object key %q: not in canonical form", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

func normalizeMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
