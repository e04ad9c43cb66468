// Package java provides the `setup_java` runner. It does not download JDKs;
// it locates an installed one for the requested version and exports it to
// the later steps of the job.
package java

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// ErrNoJDK is returned when discovery finds no JDK at all.
var ErrNoJDK = errors.New("no JDK found")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the setup_java runner.
type Input struct {
	Version string `hcl:"version"`
	// JavaHome pins the JDK location and skips discovery.
	JavaHome string `hcl:"java_home,optional"`
}

// Run locates the JDK and exports JAVA_HOME and PATH.
func Run(ctx context.Context, ws *workspace.Workspace, in *Input) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx).With("java_version", in.Version)
	if strings.TrimSpace(in.Version) == "" {
		return nil, fmt.Errorf("java version must not be empty")
	}

	home, origin, err := locate(in)
	if err != nil {
		return nil, err
	}
	if err := checkHome(home); err != nil {
		return nil, err
	}

	installed, err := releaseVersion(home)
	switch {
	case err != nil:
		logger.Warn("Could not read the JDK release file, assuming the version matches.", "java_home", home, "error", err)
		installed = in.Version
	case majorVersion(installed) != majorVersion(in.Version):
		return nil, fmt.Errorf("JDK at %s is version %s, want %s", home, installed, in.Version)
	}

	ws.SetEnv("JAVA_HOME", home)
	ws.AddPath(filepath.Join(home, "bin"))
	logger.Info("Java configured.", "java_home", home, "found_via", origin, "installed_version", installed)
	return map[string]string{"java_home": home, "version": installed}, nil
}

// locate walks the discovery order: explicit argument, versioned
// JAVA_HOME_<v>_X64 and JAVA_HOME_<v> variables, JAVA_HOME, then java on PATH.
func locate(in *Input) (string, string, error) {
	if in.JavaHome != "" {
		return in.JavaHome, "argument", nil
	}
	major := majorVersion(in.Version)
	for _, name := range []string{"JAVA_HOME_" + major + "_X64", "JAVA_HOME_" + major, "JAVA_HOME"} {
		if v := os.Getenv(name); v != "" {
			return v, name, nil
		}
	}
	javaBin, err := exec.LookPath("java")
	if err != nil {
		return "", "", fmt.Errorf("%w for version %s: set JAVA_HOME_%s or JAVA_HOME", ErrNoJDK, in.Version, major)
	}
	resolved, err := filepath.EvalSymlinks(javaBin)
	if err != nil {
		return "", "", err
	}
	return filepath.Dir(filepath.Dir(resolved)), "PATH", nil
}

func checkHome(home string) error {
	info, err := os.Stat(filepath.Join(home, "bin", "java"))
	if err != nil {
		return fmt.Errorf("JDK at %s has no bin/java: %w", home, err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return fmt.Errorf("JDK at %s: bin/java is not executable", home)
	}
	return nil
}

// releaseVersion reads JAVA_VERSION from the JDK's release file.
func releaseVersion(home string) (string, error) {
	f, err := os.Open(filepath.Join(home, "release"))
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "JAVA_VERSION="); ok {
			return strings.Trim(v, `"`), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("release file: %w", fs.ErrNotExist)
}

// majorVersion maps "17.0.2" to "17" and the legacy "1.8.0_392" to "8".
func majorVersion(v string) string {
	v = strings.TrimSpace(v)
	if rest, ok := strings.CutPrefix(v, "1."); ok {
		v = rest
	}
	if i := strings.IndexAny(v, "._+-"); i >= 0 {
		v = v[:i]
	}
	return v
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("setup_java", registry.Typed(Run))
}
