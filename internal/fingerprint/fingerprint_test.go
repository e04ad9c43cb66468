package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestHashFiles_StableForIdenticalContent(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	files := map[string]string{
		"pom.xml":        "<project>root</project>",
		"core/pom.xml":   "<project>core</project>",
		"core/README.md": "ignored",
	}
	writeTree(t, a, files)
	writeTree(t, b, files)

	ha, err := HashFiles(a, "**/pom.xml")
	require.NoError(t, err)
	hb, err := HashFiles(b, "**/pom.xml")
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)
}

func TestHashFiles_SensitiveToContent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pom.xml": "<project>1</project>"})
	before, err := HashFiles(root, "**/pom.xml")
	require.NoError(t, err)

	writeTree(t, root, map[string]string{"pom.xml": "<project>2</project>"})
	after, err := HashFiles(root, "**/pom.xml")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestHashFiles_NonMatchingFilesDoNotAffectHash(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pom.xml": "<project/>"})
	before, err := HashFiles(root, "**/pom.xml")
	require.NoError(t, err)

	writeTree(t, root, map[string]string{"src/Main.java": "class Main {}"})
	after, err := HashFiles(root, "**/pom.xml")
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestHashFiles_NoMatches(t *testing.T) {
	sum, err := HashFiles(t.TempDir(), "**/pom.xml")
	require.NoError(t, err)
	assert.Empty(t, sum)
}

func TestMatch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pom.xml":                "",
		"app/pom.xml":            "",
		"app/target/pom.xml":     "",
		"app/src/main/Main.java": "",
	})

	got, err := Match(root, "**/pom.xml", "!**/target/**")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/pom.xml", "pom.xml"}, got)

	_, err = Match(root, "[")
	assert.ErrorContains(t, err, "invalid pattern")
}
