package integration_tests

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/archive"
	"github.com/vk/mvnflow/internal/testutil"
)

func TestPipeline_SecretsNeverReachLogsOrStorage(t *testing.T) {
	// --- Arrange ---
	testutil.FakeJDK(t, "17")
	opts := pipelineOptions()
	opts.CacheDir = filepath.Join(t.TempDir(), "cache")

	// --- Act ---
	result := testutil.RunIntegrationTest(t, opts)

	// --- Assert ---
	require.NoError(t, result.Err)
	require.NotContains(t, result.LogOutput, registryPass)
	require.NotContains(t, result.LogOutput, registryUser)

	for _, root := range []string{opts.CacheDir, filepath.Join(result.RunDir, "artifacts")} {
		payloads, err := filepath.Glob(filepath.Join(root, "data", "*", "*.tar.gz"))
		require.NoError(t, err)
		require.NotEmpty(t, payloads, "no payloads written under %s", root)
		require.Empty(t, filesContaining(t, root, registryPass), "secret found under %s", root)
	}
}

func TestFilesContaining_LooksInsideArchives(t *testing.T) {
	// --- Arrange ---
	src := t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"conf/app.properties": "password=" + registryPass})
	store := t.TempDir()
	f, err := os.Create(filepath.Join(store, "bundle.tar.gz"))
	require.NoError(t, err)
	_, err = archive.Pack(context.Background(), src, f, archive.PackOptions{})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// --- Act ---
	found := filesContaining(t, store, registryPass)

	// --- Assert ---
	require.Equal(t, []string{"bundle.tar.gz!conf/app.properties"}, found)
}

// filesContaining lists the files under root whose content includes needle.
// Archives are unpacked and their members reported as archive!member.
func filesContaining(t *testing.T, root, needle string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasSuffix(p, ".tar.gz") {
			b, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			if bytes.Contains(b, []byte(needle)) {
				found = append(found, rel)
			}
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		dest := t.TempDir()
		if _, err := archive.Unpack(context.Background(), f, dest); err != nil {
			return err
		}
		for _, member := range filesContaining(t, dest, needle) {
			found = append(found, rel+"!"+member)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func TestPipeline_MissingSecretFailsAtStartup(t *testing.T) {
	// --- Arrange ---
	opts := pipelineOptions()
	delete(opts.Env, "DOCKER_REGISTRY_PASSWORD")

	// --- Act ---
	result := testutil.RunIntegrationTest(t, opts)

	// --- Assert ---
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "application startup panicked")
	require.Contains(t, result.Err.Error(), "DOCKER_REGISTRY_PASSWORD")
	require.Empty(t, result.Maven.Invocations(), "nothing runs when startup fails")
}

func TestPipeline_MissingRequiredInputFailsAtStartup(t *testing.T) {
	// --- Arrange ---
	opts := pipelineOptions()
	opts.Inputs = nil

	// --- Act ---
	result := testutil.RunIntegrationTest(t, opts)

	// --- Assert ---
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "required inputs not provided: docker-registry")
}
