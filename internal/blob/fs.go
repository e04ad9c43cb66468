package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	fsDataDir  = "data"
	fsMetaDir  = "meta"
	fsTmpGlob  = ".tmp-*"
	fsTmpStart = ".tmp-"
)

// FSStore keeps objects as plain files under a root directory. Object bodies
// live under data/ and metadata as JSON under meta/. Writes go through a
// temporary file and a rename, so readers never observe partial objects.
type FSStore struct {
	root string
}

// NewFSStore creates the store directories under root.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	for _, dir := range []string{fsDataDir, fsMetaDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute store directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) paths(key string) (string, string, error) {
	if err := ValidateKey(key); err != nil {
		return "", "", err
	}
	if strings.HasPrefix(filepath.Base(key), fsTmpStart) {
		return "", "", fmt.Errorf("invalid object key %q: reserved name", key)
	}
	data, err := securejoin.SecureJoin(filepath.Join(s.root, fsDataDir), filepath.FromSlash(key))
	if err != nil {
		return "", "", err
	}
	meta, err := securejoin.SecureJoin(filepath.Join(s.root, fsMetaDir), filepath.FromSlash(key)+".json")
	if err != nil {
		return "", "", err
	}
	return data, meta, nil
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	metaBytes, err := json.Marshal(normalizeMetadata(metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(metaPath, func(w io.Writer) error {
		_, err := w.Write(metaBytes)
		return err
	}); err != nil {
		return fmt.Errorf("write metadata for %s: %w", key, err)
	}

	err = writeAtomic(dataPath, func(w io.Writer) error {
		n, err := io.Copy(w, &ctxReader{ctx: ctx, r: r})
		if err != nil {
			return err
		}
		if size >= 0 && n != size {
			return fmt.Errorf("short write: wrote %d of %d bytes", n, size)
		}
		return nil
	})
	if err != nil {
		if _, statErr := os.Stat(dataPath); errors.Is(statErr, fs.ErrNotExist) {
			_ = os.Remove(metaPath)
		}
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return nil, Object{}, err
	}
	dataPath, _, err := s.paths(key)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, Object{}, err
	}
	return f, obj, nil
}

// Stat implements Store.
func (s *FSStore) Stat(ctx context.Context, key string) (Object, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Object{}, err
	}
	if info.IsDir() {
		return Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	meta, err := readMetadata(metaPath)
	if err != nil {
		return Object{}, fmt.Errorf("read metadata for %s: %w", key, err)
	}
	return Object{Key: key, Size: info.Size(), Modified: info.ModTime(), Metadata: meta}, nil
}

// List implements Store.
func (s *FSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	dataRoot := filepath.Join(s.root, fsDataDir)
	var out []Object
	err := filepath.WalkDir(dataRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), fsTmpStart) {
			return nil
		}
		rel, err := filepath.Rel(dataRoot, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		obj := Object{Key: key, Size: info.Size(), Modified: info.ModTime()}
		if _, metaPath, err := s.paths(key); err == nil {
			obj.Metadata, _ = readMetadata(metaPath)
		}
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store. Deleting a missing key returns ErrNotFound.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeAtomic writes through a temporary sibling file and renames it into
// place once fill succeeded.
func writeAtomic(target string, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, fsTmpGlob)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func readMetadata(p string) (map[string]string, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	meta := map[string]string{}
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
