package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileEntry struct {
	Content string
	Mode    fs.FileMode
}

func writeTree(t *testing.T, root string, files map[string]fileEntry) {
	t.Helper()
	for rel, f := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f.Content), f.Mode))
		require.NoError(t, os.Chmod(p, f.Mode))
	}
}

func readTree(t *testing.T, root string) map[string]fileEntry {
	t.Helper()
	out := map[string]fileEntry{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		info, err := d.Info()
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = fileEntry{Content: string(b), Mode: info.Mode().Perm()}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeTree(t, src, map[string]fileEntry{
		"app/1.0.0/app-1.0.0.jar":         {Content: "jar-bytes", Mode: 0o644},
		"app/1.0.0/app-1.0.0.pom":         {Content: "<project/>", Mode: 0o644},
		"app/maven-metadata-local.xml":    {Content: "<metadata/>", Mode: 0o600},
		"tools/bin/run.sh":                {Content: "#!/bin/sh\n", Mode: 0o755},
		"app/1.0.0/app-1.0.0-dist.tar.gz": {Content: "excluded", Mode: 0o644},
		"app/1.0.0/sources.tgz":           {Content: "excluded", Mode: 0o644},
		"bundle.tar":                      {Content: "excluded", Mode: 0o644},
	})

	var buf bytes.Buffer
	packStats, err := Pack(ctx, src, &buf, PackOptions{Exclude: []string{"**/*.tar.gz", "**/*.tgz", "**/*.tar"}})
	require.NoError(t, err)
	assert.Equal(t, 4, packStats.Files)
	assert.Equal(t, 3, packStats.Excluded)

	dest := filepath.Join(t.TempDir(), "out")
	unpackStats, err := Unpack(ctx, &buf, dest)
	require.NoError(t, err)
	assert.Equal(t, packStats.Files, unpackStats.Files)
	assert.Equal(t, packStats.Bytes, unpackStats.Bytes)

	want := map[string]fileEntry{
		"app/1.0.0/app-1.0.0.jar":      {Content: "jar-bytes", Mode: 0o644},
		"app/1.0.0/app-1.0.0.pom":      {Content: "<project/>", Mode: 0o644},
		"app/maven-metadata-local.xml": {Content: "<metadata/>", Mode: 0o600},
		"tools/bin/run.sh":             {Content: "#!/bin/sh\n", Mode: 0o755},
	}
	if diff := cmp.Diff(want, readTree(t, dest)); diff != "" {
		t.Errorf("extracted tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPack_PreservesModTime(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeTree(t, src, map[string]fileEntry{"a.txt": {Content: "a", Mode: 0o644}})
	info, err := os.Stat(filepath.Join(src, "a.txt"))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = Pack(ctx, src, &buf, PackOptions{})
	require.NoError(t, err)
	dest := t.TempDir()
	_, err = Unpack(ctx, &buf, dest)
	require.NoError(t, err)

	got, err := os.Stat(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Truncate(1e6).Equal(got.ModTime().Truncate(1e6)))
}

func TestPack_Symlink(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeTree(t, src, map[string]fileEntry{"dir/target.txt": {Content: "t", Mode: 0o644}})
	require.NoError(t, os.Symlink("target.txt", filepath.Join(src, "dir", "link.txt")))

	var buf bytes.Buffer
	_, err := Pack(ctx, src, &buf, PackOptions{})
	require.NoError(t, err)
	dest := t.TempDir()
	_, err = Unpack(ctx, &buf, dest)
	require.NoError(t, err)

	link, err := os.Readlink(filepath.Join(dest, "dir", "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "target.txt", link)
}

func TestPack_Errors(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	_, err := Pack(ctx, t.TempDir(), &buf, PackOptions{Exclude: []string{"[unclosed"}})
	assert.ErrorContains(t, err, "invalid exclude pattern")

	_, err = Pack(ctx, filepath.Join(t.TempDir(), "missing"), &buf, PackOptions{})
	assert.ErrorContains(t, err, "stat")

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err = Pack(ctx, f, &buf, PackOptions{})
	assert.ErrorContains(t, err, "is not a directory")
}

func craftArchive(t *testing.T, headers ...*tar.Header) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, h := range headers {
		require.NoError(t, tw.WriteHeader(h))
		if h.Typeflag == tar.TypeReg {
			_, err := tw.Write(make([]byte, h.Size))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestUnpack_RejectsEscapes(t *testing.T) {
	ctx := context.Background()

	t.Run("parent traversal", func(t *testing.T) {
		buf := craftArchive(t, &tar.Header{Name: "../evil.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1})
		_, err := Unpack(ctx, buf, t.TempDir())
		assert.ErrorContains(t, err, "escapes the destination")
	})

	t.Run("absolute path", func(t *testing.T) {
		buf := craftArchive(t, &tar.Header{Name: "/etc/evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1})
		_, err := Unpack(ctx, buf, t.TempDir())
		assert.ErrorContains(t, err, "escapes the destination")
	})

	t.Run("symlink out of tree", func(t *testing.T) {
		buf := craftArchive(t, &tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "../../etc/passwd"})
		_, err := Unpack(ctx, buf, t.TempDir())
		assert.ErrorContains(t, err, "links outside the destination")
	})
}

func TestUnpack_NotAnArchive(t *testing.T) {
	_, err := Unpack(context.Background(), bytes.NewReader([]byte("plain text")), t.TempDir())
	assert.ErrorContains(t, err, "open archive")
}
