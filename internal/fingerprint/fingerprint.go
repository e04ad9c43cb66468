// Package fingerprint computes content hashes of file sets. The hashes key
// the dependency cache, so identical manifests must map to identical hashes
// regardless of walk order or modification times.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// HashFiles returns the hex sha256 over the sorted per-file sha256 digests of
// every regular file under root matching patterns. Patterns are slash
// separated doublestar globs relative to root; a leading '!' excludes
// matches. When nothing matches the result is the empty string.
func HashFiles(root string, patterns ...string) (string, error) {
	files, err := Match(root, patterns...)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	fsys := os.DirFS(root)
	total := sha256.New()
	for _, name := range files {
		sum, err := hashFile(fsys, name)
		if err != nil {
			return "", err
		}
		total.Write(sum)
	}
	return hex.EncodeToString(total.Sum(nil)), nil
}

// Match returns the sorted, slash separated paths under root selected by
// patterns.
func Match(root string, patterns ...string) ([]string, error) {
	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "!") {
			exclude = append(exclude, path.Clean(strings.TrimPrefix(p, "!")))
			continue
		}
		include = append(include, path.Clean(p))
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	for _, p := range include {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("matching %q under %s: %w", p, root, err)
		}
		for _, m := range matches {
			if excluded(m, exclude) {
				continue
			}
			seen[m] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func hashFile(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return h.Sum(nil), nil
}
