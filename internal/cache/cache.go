// Package cache implements the content-keyed dependency cache. Entries are
// immutable archives stored in a blob.Store under cache/<key>.tar.gz.
//
// Restore tries the exact key first and then each restore key as a prefix,
// picking the most recently written entry among prefix matches. Save writes
// only when no entry with that exact key exists, so concurrent savers of the
// same key leave a single entry behind.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vk/mvnflow/internal/archive"
	"github.com/vk/mvnflow/internal/blob"
	"github.com/vk/mvnflow/internal/ctxlog"
)

const (
	keyPrefix = "cache/"
	keySuffix = ".tar.gz"

	metaKey     = "cache-key"
	metaCreated = "created-at"
)

// Key builds the primary cache key salt-os-hash.
func Key(salt, os, hash string) string {
	return PrefixKey(salt, os) + hash
}

// PrefixKey builds the fallback restore key salt-os-.
func PrefixKey(salt, os string) string {
	return salt + "-" + os + "-"
}

// RestoreResult reports which entry, if any, was restored.
type RestoreResult struct {
	// MatchedKey is empty on a miss.
	MatchedKey string
	// Exact is true only when MatchedKey equals the primary key.
	Exact bool
	Stats archive.Stats
}

// Hit reports whether any entry was restored.
func (r RestoreResult) Hit() bool { return r.MatchedKey != "" }

// Cache is a dependency cache on top of an object store.
type Cache struct {
	store blob.Store
	now   func() time.Time
}

// New creates a cache backed by store.
func New(store blob.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// ValidateKey rejects keys that cannot be stored.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key must not be empty")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("cache key %q must not contain path separators", key)
	}
	return blob.ValidateKey(objectKey(key))
}

func objectKey(key string) string {
	return keyPrefix + key + keySuffix
}

// Restore extracts the best matching entry into dest. A miss is not an error.
func (c *Cache) Restore(ctx context.Context, key string, restoreKeys []string, dest string) (RestoreResult, error) {
	logger := ctxlog.FromContext(ctx).With("cache_key", key)
	if err := ValidateKey(key); err != nil {
		return RestoreResult{}, err
	}

	if _, err := c.store.Stat(ctx, objectKey(key)); err == nil {
		stats, err := c.extract(ctx, key, dest)
		if err != nil {
			return RestoreResult{}, err
		}
		logger.Info("Cache restored from exact key.", "files", stats.Files)
		return RestoreResult{MatchedKey: key, Exact: true, Stats: stats}, nil
	} else if !errors.Is(err, blob.ErrNotFound) {
		return RestoreResult{}, fmt.Errorf("look up cache key %s: %w", key, err)
	}

	for _, prefix := range restoreKeys {
		if prefix == "" {
			continue
		}
		match, err := c.latestWithPrefix(ctx, prefix)
		if err != nil {
			return RestoreResult{}, err
		}
		if match == "" {
			continue
		}
		stats, err := c.extract(ctx, match, dest)
		if err != nil {
			return RestoreResult{}, err
		}
		logger.Info("Cache restored from restore key.", "restore_key", prefix, "matched_key", match, "files", stats.Files)
		return RestoreResult{MatchedKey: match, Stats: stats}, nil
	}

	logger.Info("Cache miss.")
	return RestoreResult{}, nil
}

// Save archives src under key unless an entry with that key already exists.
// It reports whether a new entry was written.
func (c *Cache) Save(ctx context.Context, key, src string) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("cache_key", key)
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	if _, err := c.store.Stat(ctx, objectKey(key)); err == nil {
		logger.Info("Cache entry already exists, not saving.")
		return false, nil
	} else if !errors.Is(err, blob.ErrNotFound) {
		return false, fmt.Errorf("look up cache key %s: %w", key, err)
	}

	pr, pw := io.Pipe()
	statsCh := make(chan archive.Stats, 1)
	go func() {
		stats, err := archive.Pack(ctx, src, pw, archive.PackOptions{})
		statsCh <- stats
		pw.CloseWithError(err)
	}()

	meta := map[string]string{
		metaKey:     key,
		metaCreated: c.now().UTC().Format(time.RFC3339Nano),
	}
	err := c.store.Put(ctx, objectKey(key), pr, -1, meta)
	pr.CloseWithError(err)
	stats := <-statsCh
	if err != nil {
		return false, fmt.Errorf("save cache key %s: %w", key, err)
	}
	logger.Info("Cache saved.", "files", stats.Files, "bytes", stats.Bytes)
	return true, nil
}

// Entries lists the keys of all entries starting with prefix.
func (c *Cache) Entries(ctx context.Context, prefix string) ([]blob.Object, error) {
	objs, err := c.store.List(ctx, keyPrefix+prefix)
	if err != nil {
		return nil, err
	}
	out := objs[:0]
	for _, o := range objs {
		if strings.HasSuffix(o.Key, keySuffix) {
			o.Key = strings.TrimSuffix(strings.TrimPrefix(o.Key, keyPrefix), keySuffix)
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *Cache) latestWithPrefix(ctx context.Context, prefix string) (string, error) {
	entries, err := c.Entries(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list cache entries for %s: %w", prefix, err)
	}
	var best blob.Object
	for _, e := range entries {
		if best.Key == "" || e.Modified.After(best.Modified) {
			best = e
		}
	}
	return best.Key, nil
}

func (c *Cache) extract(ctx context.Context, key, dest string) (archive.Stats, error) {
	rc, _, err := c.store.Get(ctx, objectKey(key))
	if err != nil {
		return archive.Stats{}, fmt.Errorf("open cache entry %s: %w", key, err)
	}
	defer rc.Close()
	stats, err := archive.Unpack(ctx, rc, dest)
	if err != nil {
		return stats, fmt.Errorf("restore cache entry %s: %w", key, err)
	}
	return stats, nil
}
