// Package artifact moves build output between jobs as named, expiring
// bundles kept in a blob.Store under artifacts/<name>.tar.gz.
//
// Bundle names are global to the store: two runs uploading the same name
// collide until the first bundle expires or is pruned.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vk/mvnflow/internal/archive"
	"github.com/vk/mvnflow/internal/blob"
	"github.com/vk/mvnflow/internal/ctxlog"
)

const (
	// DefaultRetentionDays applies when UploadOptions.RetentionDays is unset.
	DefaultRetentionDays = 1
	// MaxRetentionDays caps UploadOptions.RetentionDays.
	MaxRetentionDays = 90

	keyPrefix = "artifacts/"
	keySuffix = ".tar.gz"

	metaName    = "bundle-name"
	metaFiles   = "file-count"
	metaBytes   = "content-bytes"
	metaCreated = "created-at"
	metaExpires = "expires-at"
)

var (
	ErrBundleExists   = errors.New("artifact bundle already exists")
	ErrBundleNotFound = errors.New("artifact bundle not found")
	ErrBundleExpired  = errors.New("artifact bundle expired")
	ErrNoFiles        = errors.New("no files to upload")
)

// Bundle describes a stored artifact bundle.
type Bundle struct {
	Name string
	// Files is the number of regular files in the bundle.
	Files int
	// Size is the uncompressed content size in bytes.
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the bundle is past its retention at t.
func (b *Bundle) Expired(t time.Time) bool {
	return !b.ExpiresAt.IsZero() && !t.Before(b.ExpiresAt)
}

// UploadOptions tunes Store.Upload.
type UploadOptions struct {
	// Exclude holds doublestar patterns relative to the uploaded root.
	Exclude       []string
	RetentionDays int
}

// Store uploads and downloads bundles.
type Store struct {
	blobs blob.Store
	now   func() time.Time
}

// NewStore creates an artifact store on top of blobs.
func NewStore(blobs blob.Store) *Store {
	return &Store{blobs: blobs, now: time.Now}
}

// ValidateName rejects names that cannot be used as a bundle name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("artifact name must not be empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	if i := strings.IndexAny(name, "\":<>|*?\r\n\\/"); i >= 0 {
		return fmt.Errorf("invalid artifact name %q: character %q is not allowed", name, name[i])
	}
	return nil
}

func objectKey(name string) string {
	return keyPrefix + name + keySuffix
}

// Upload packs the tree under root, minus excluded paths, into the bundle
// name. An unexpired bundle with the same name is never overwritten.
func (s *Store) Upload(ctx context.Context, name, root string, opts UploadOptions) (*Bundle, error) {
	logger := ctxlog.FromContext(ctx).With("artifact", name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	retention := opts.RetentionDays
	switch {
	case retention <= 0:
		retention = DefaultRetentionDays
	case retention > MaxRetentionDays:
		return nil, fmt.Errorf("retention of %d days exceeds the maximum of %d", retention, MaxRetentionDays)
	}

	_, err := s.Stat(ctx, name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w", name, ErrBundleExists)
	case errors.Is(err, ErrBundleExpired):
		logger.Debug("Replacing expired bundle.")
		if err := s.blobs.Delete(ctx, objectKey(name)); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("remove expired bundle %s: %w", name, err)
		}
	case errors.Is(err, ErrBundleNotFound):
	default:
		return nil, err
	}

	tmp, err := os.CreateTemp("", "mvnflow-artifact-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	stats, err := archive.Pack(ctx, root, tmp, archive.PackOptions{Exclude: opts.Exclude})
	if err != nil {
		return nil, fmt.Errorf("pack artifact %s: %w", name, err)
	}
	if stats.Files == 0 {
		return nil, fmt.Errorf("%s: %s: %w", name, root, ErrNoFiles)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	created := s.now().UTC()
	bundle := &Bundle{
		Name:      name,
		Files:     stats.Files,
		Size:      stats.Bytes,
		CreatedAt: created,
		ExpiresAt: created.Add(time.Duration(retention) * 24 * time.Hour),
	}
	if err := s.blobs.Put(ctx, objectKey(name), tmp, size, bundleMetadata(bundle)); err != nil {
		return nil, fmt.Errorf("store artifact %s: %w", name, err)
	}
	logger.Info("Artifact uploaded.", "files", stats.Files, "bytes", stats.Bytes, "excluded", stats.Excluded, "expires_at", bundle.ExpiresAt)
	return bundle, nil
}

// Download replaces dest with the content of the bundle. Removing the old
// dest is best effort; failures are logged and extraction proceeds.
func (s *Store) Download(ctx context.Context, name, dest string) (*Bundle, error) {
	logger := ctxlog.FromContext(ctx).With("artifact", name)
	bundle, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(dest); err != nil {
		logger.Warn("Could not clear download destination, extracting over it.", "path", dest, "error", err)
	}

	rc, _, err := s.blobs.Get(ctx, objectKey(name))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrBundleNotFound)
		}
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	defer rc.Close()

	stats, err := archive.Unpack(ctx, rc, dest)
	if err != nil {
		return nil, fmt.Errorf("extract artifact %s: %w", name, err)
	}
	logger.Info("Artifact downloaded.", "files", stats.Files, "bytes", stats.Bytes, "path", dest)
	return bundle, nil
}

// Stat returns the bundle description. Expired bundles yield the bundle
// together with ErrBundleExpired.
func (s *Store) Stat(ctx context.Context, name string) (*Bundle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	obj, err := s.blobs.Stat(ctx, objectKey(name))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrBundleNotFound)
		}
		return nil, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	bundle := parseBundle(name, obj)
	if bundle.Expired(s.now()) {
		return bundle, fmt.Errorf("%s expired at %s: %w", name, bundle.ExpiresAt.Format(time.RFC3339), ErrBundleExpired)
	}
	return bundle, nil
}

// Prune deletes every expired bundle and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	logger := ctxlog.FromContext(ctx)
	objs, err := s.blobs.List(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}
	removed := 0
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, keySuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(o.Key, keyPrefix), keySuffix)
		if _, err := s.Stat(ctx, name); !errors.Is(err, ErrBundleExpired) {
			continue
		}
		if err := s.blobs.Delete(ctx, o.Key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return removed, fmt.Errorf("delete expired artifact %s: %w", name, err)
		}
		logger.Debug("Pruned expired artifact.", "artifact", name)
		removed++
	}
	if removed > 0 {
		logger.Info("Pruned expired artifacts.", "count", removed)
	}
	return removed, nil
}

func bundleMetadata(b *Bundle) map[string]string {
	return map[string]string{
		metaName:    b.Name,
		metaFiles:   strconv.Itoa(b.Files),
		metaBytes:   strconv.FormatInt(b.Size, 10),
		metaCreated: b.CreatedAt.Format(time.RFC3339Nano),
		metaExpires: b.ExpiresAt.Format(time.RFC3339Nano),
	}
}

func parseBundle(name string, obj blob.Object) *Bundle {
	b := &Bundle{Name: name, CreatedAt: obj.Modified}
	if v, err := strconv.Atoi(obj.Metadata[metaFiles]); err == nil {
		b.Files = v
	}
	if v, err := strconv.ParseInt(obj.Metadata[metaBytes], 10, 64); err == nil {
		b.Size = v
	}
	if t, err := time.Parse(time.RFC3339Nano, obj.Metadata[metaCreated]); err == nil {
		b.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, obj.Metadata[metaExpires]); err == nil {
		b.ExpiresAt = t
	} else {
		// Bundles without an expiry record fall back to the default retention.
		b.ExpiresAt = b.CreatedAt.Add(DefaultRetentionDays * 24 * time.Hour)
	}
	return b
}
