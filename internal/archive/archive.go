// Package archive packs directory trees into gzip-compressed tarballs and
// extracts them again. It is the payload format of cache entries and artifact
// bundles.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
)

// Stats summarises a pack or unpack operation.
type Stats struct {
	Files    int
	Dirs     int
	Bytes    int64
	Excluded int
}

// PackOptions tunes Pack.
type PackOptions struct {
	// Exclude holds doublestar patterns matched against slash-separated
	// paths relative to the packed root.
	Exclude []string
}

// Pack writes the tree under root to w. Regular files, directories and
// symlinks are kept along with their modes and modification times.
func Pack(ctx context.Context, root string, w io.Writer, opts PackOptions) (Stats, error) {
	var stats Stats
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return stats, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%s is not a directory", root)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, opts.Exclude) {
			stats.Excluded++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		// Drop owner details so archives do not depend on the packing user.
		hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""
		hdr.Format = tar.FormatPAX
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		switch {
		case d.IsDir():
			stats.Dirs++
		case fi.Mode().IsRegular():
			n, err := copyFile(tw, p)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("pack %s: %w", root, err)
	}
	if err := tw.Close(); err != nil {
		return stats, err
	}
	if err := gz.Close(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Unpack extracts an archive written by Pack into dest, creating dest when
// needed. Entries that would land outside dest are rejected.
func Unpack(ctx context.Context, r io.Reader, dest string) (Stats, error) {
	var stats Stats
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return stats, fmt.Errorf("create %s: %w", dest, err)
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	type dirTime struct {
		path string
		mod  time.Time
	}
	var dirTimes []dirTime

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read archive: %w", err)
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return stats, fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
		}
		target, err := securejoin.SecureJoin(dest, filepath.FromSlash(name))
		if err != nil {
			return stats, fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		mode := hdr.FileInfo().Mode().Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, err
			}
			if err := os.Chmod(target, mode|0o700); err != nil {
				return stats, err
			}
			dirTimes = append(dirTimes, dirTime{target, hdr.ModTime})
			stats.Dirs++
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return stats, err
			}
			n, err := writeFile(target, tr, mode)
			if err != nil {
				return stats, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n
		case tar.TypeSymlink:
			resolved := filepath.Join(filepath.Dir(filepath.FromSlash(name)), filepath.FromSlash(hdr.Linkname))
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(resolved) {
				return stats, fmt.Errorf("archive entry %q links outside the destination", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return stats, err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return stats, err
			}
		default:
			return stats, fmt.Errorf("archive entry %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}
	}

	// Directory times last, since writing files into them bumps mtimes.
	for i := len(dirTimes) - 1; i >= 0; i-- {
		_ = os.Chtimes(dirTimes[i].path, dirTimes[i].mod, dirTimes[i].mod)
	}
	return stats, nil
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func copyFile(w io.Writer, p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func writeFile(target string, r io.Reader, mode fs.FileMode) (int64, error) {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, os.Chmod(target, mode)
}
