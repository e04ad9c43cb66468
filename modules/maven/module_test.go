package maven

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/ctxlog"
	mvn "github.com/vk/mvnflow/internal/maven"
	"github.com/vk/mvnflow/internal/process"
	"github.com/vk/mvnflow/internal/process/processtest"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

func testContext(buf *bytes.Buffer) context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(buf, nil)))
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "run-1", "build", "")
	require.NoError(t, err)
	return ws
}

func newModule(fake *processtest.FakeMaven) *Module {
	return &Module{Client: mvn.NewClient(fake, "/opt/maven/bin/mvn")}
}

func TestSettings_FromFile(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "ci-settings.xml"), []byte("<settings>file</settings>"), 0o644))

	out, err := Settings(testContext(&bytes.Buffer{}), ws, &SettingsInput{File: "ci-settings.xml", Inline: "<settings/>"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "file", "path": "~/.m2/settings.xml"}, out)

	b, err := os.ReadFile(mvn.SettingsPath(ws.Home))
	require.NoError(t, err)
	assert.Equal(t, "<settings>file</settings>", string(b))
}

func TestSettings_InlineFallback(t *testing.T) {
	ws := newWorkspace(t)
	var logs bytes.Buffer

	out, err := Settings(testContext(&logs), ws, &SettingsInput{File: "missing.xml", Inline: "<settings>inline</settings>"})
	require.NoError(t, err)
	assert.Equal(t, "inline", out["source"])
	assert.Contains(t, logs.String(), "Settings file not usable")

	b, err := os.ReadFile(mvn.SettingsPath(ws.Home))
	require.NoError(t, err)
	assert.Equal(t, "<settings>inline</settings>", string(b))
}

func TestMetadata(t *testing.T) {
	ws := newWorkspace(t)
	fake := processtest.NewFakeMaven("com.example.shop", "shop-api", "1.4.0")

	out, err := newModule(fake).Metadata(testContext(&bytes.Buffer{}), ws)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"groupId":               "com.example.shop",
		"artifactId":            "shop-api",
		"version":               "1.4.0",
		"localRepository":       "~/.m2/repository",
		"groupIdRepositoryPath": "~/.m2/repository/com/example/shop",
	}, out)

	invs := fake.Invocations()
	require.Len(t, invs, 4)
	for _, inv := range invs {
		assert.Equal(t, ws.Home, inv.Home, "user.home must point at the job HOME")
		assert.Equal(t, ws.Dir, inv.Dir)
	}
}

func TestMetadata_EvaluateFails(t *testing.T) {
	fake := processtest.NewFakeMaven("com.example", "app", "1.0")
	fake.FailGoals["help:evaluate"] = 1

	_, err := newModule(fake).Metadata(testContext(&bytes.Buffer{}), newWorkspace(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluate project.groupId")
}

func TestRun(t *testing.T) {
	ws := newWorkspace(t)
	fake := processtest.NewFakeMaven("com.example", "app", "1.0")
	var logs bytes.Buffer

	out, err := newModule(fake).Run(testContext(&logs), ws, &RunInput{Goals: []string{"install"}, Args: []string{"-DskipTests"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"exit_code": "0"}, out)
	assert.Contains(t, logs.String(), "install: BUILD SUCCESS")

	jar, err := mvn.ArtifactFile(mvn.LocalRepositoryPath(ws.Home), fake.Project, "jar")
	require.NoError(t, err)
	assert.FileExists(t, jar)

	inv := fake.GoalInvocations("install")
	require.Len(t, inv, 1)
	assert.Equal(t, []string{"--batch-mode", "install", "-DskipTests"}, inv[0].Args)
}

func TestRun_ExitCodeReportedOnFailure(t *testing.T) {
	fake := processtest.NewFakeMaven("com.example", "app", "1.0")
	fake.FailGoals["verify"] = 3

	out, err := newModule(fake).Run(testContext(&bytes.Buffer{}), newWorkspace(t), &RunInput{Goals: []string{"verify"}})
	require.Error(t, err)
	var exitErr *process.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, map[string]string{"exit_code": "3"}, out)
}

func TestRegister(t *testing.T) {
	r := registry.New()
	newModule(processtest.NewFakeMaven("g", "a", "v")).Register(r)
	assert.Equal(t, []string{"maven", "maven_metadata", "maven_settings"}, r.Names())

	settings, _ := r.Runner("maven_settings")
	assert.NotNil(t, settings.NewInput)
	metadata, _ := r.Runner("maven_metadata")
	assert.Nil(t, metadata.NewInput)
}
