package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// DefaultPOM is the pom.xml written by WriteProject when none is given.
const DefaultPOM = `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>com.example</groupId>
  <artifactId>demo</artifactId>
  <version>1.2.3</version>
</project>
`

// WriteFiles writes files relative to root, creating directories as needed.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// WriteProject creates a Maven project directory. A pom.xml is added unless
// files carries one.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "project")
	all := map[string]string{"pom.xml": DefaultPOM, "src/main/java/App.java": "class App {}\n"}
	for k, v := range files {
		all[k] = v
	}
	WriteFiles(t, dir, all)
	return dir
}

// FakeJDK lays out a directory that passes for a JDK of the given version
// and exposes it through JAVA_HOME_<version>_X64. Tests using it cannot run
// in parallel.
func FakeJDK(t *testing.T, version string) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "jdk-"+version)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "java"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	release := "JAVA_VERSION=\"" + version + "\"\nIMPLEMENTOR=\"Fake\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "release"), []byte(release), 0o644))
	t.Setenv("JAVA_HOME_"+version+"_X64", home)
	return home
}
