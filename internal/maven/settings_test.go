package maven

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inlineSettings = "<settings>\n  <offline>false</offline>\n</settings>"

func TestResolveSettings_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.xml")
	require.NoError(t, os.WriteFile(p, []byte("<settings>from file</settings>"), 0o644))

	doc := ResolveSettings(p, inlineSettings)
	assert.Equal(t, SourceFile, doc.Source)
	assert.Equal(t, "<settings>from file</settings>", string(doc.Content))
	assert.Equal(t, p, doc.Path)
	assert.NoError(t, doc.FileErr)
}

func TestResolveSettings_FallsBackToInline(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"missing file":  filepath.Join(dir, "nope.xml"),
		"path is a dir": dir,
		"empty path":    "",
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			doc := ResolveSettings(path, inlineSettings)
			assert.Equal(t, SourceInline, doc.Source)
			assert.Equal(t, inlineSettings, string(doc.Content))
			assert.Empty(t, doc.Path)
		})
	}
}

func TestResolveSettings_Deterministic(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.xml")
	assert.Equal(t, ResolveSettings(missing, inlineSettings).Content, ResolveSettings(missing, inlineSettings).Content)
}

func TestWriteSettings(t *testing.T) {
	home := t.TempDir()
	p, err := WriteSettings(home, ResolveSettings("", inlineSettings))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".m2", "settings.xml"), p)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, inlineSettings, string(b))
	assert.Equal(t, filepath.Join(home, ".m2", "repository"), LocalRepositoryPath(home))
}
