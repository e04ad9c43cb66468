// Package workspace gives every job its own directories and environment.
//
// A job owns {runDir}/{job}/workspace (the checked out project), a private
// HOME at {runDir}/{job}/home and a temp dir. Paths starting with "~" are
// resolved against that HOME, so values such as "~/.m2/repository/com/acme"
// can be forwarded between jobs and still point into each job's own tree.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Workspace is the per-job sandbox handed to runners.
type Workspace struct {
	RunID  string
	Job    string
	RunDir string
	// Dir is the job's working directory.
	Dir  string
	Home string
	Temp string
	// Source is the project location the checkout runner copies from.
	Source string

	mu       sync.RWMutex
	env      map[string]string
	stepEnv  map[string]string
	pathDirs []string
}

// New creates the job directories under runDir.
func New(runDir, runID, job, source string) (*Workspace, error) {
	if job == "" || strings.ContainsAny(job, `/\`) || job == "." || job == ".." {
		return nil, fmt.Errorf("invalid job name %q for a workspace", job)
	}
	base := filepath.Join(runDir, job)
	ws := &Workspace{
		RunID:  runID,
		Job:    job,
		RunDir: runDir,
		Dir:    filepath.Join(base, "workspace"),
		Home:   filepath.Join(base, "home"),
		Temp:   filepath.Join(base, "tmp"),
		Source: source,
		env:    make(map[string]string),
	}
	for _, dir := range []string{ws.Dir, ws.Home, ws.Temp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace directory %s: %w", dir, err)
		}
	}
	return ws, nil
}

// SetEnv exports a variable to every later step of the job.
func (w *Workspace) SetEnv(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.env[key] = value
}

// Getenv returns a variable exported with SetEnv.
func (w *Workspace) Getenv(key string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.env[key]
	return v, ok
}

// Env returns a copy of the exported variables.
func (w *Workspace) Env() map[string]string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]string, len(w.env))
	for k, v := range w.env {
		out[k] = v
	}
	return out
}

// SetStepEnv replaces the variables scoped to the current step. Steps of a
// job run one at a time, so the executor sets this before each step and
// clears it with nil afterwards.
func (w *Workspace) SetStepEnv(env map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stepEnv = env
}

// AddPath prepends dir to PATH for later steps.
func (w *Workspace) AddPath(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range w.pathDirs {
		if d == dir {
			return
		}
	}
	w.pathDirs = append([]string{dir}, w.pathDirs...)
}

// Environ builds a process environment: the host environment, then HOME
// and TMPDIR pointing into the job, then exported variables, then the step
// variables, then extra. Entries are sorted by name.
func (w *Workspace) Environ(extra map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	merged["HOME"] = w.Home
	merged["TMPDIR"] = w.Temp

	w.mu.RLock()
	for k, v := range w.env {
		merged[k] = v
	}
	if len(w.pathDirs) > 0 {
		parts := append([]string{}, w.pathDirs...)
		if p := merged["PATH"]; p != "" {
			parts = append(parts, p)
		}
		merged["PATH"] = strings.Join(parts, string(os.PathListSeparator))
	}
	for k, v := range w.stepEnv {
		merged[k] = v
	}
	w.mu.RUnlock()

	for k, v := range extra {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// LookPath finds an executable using the job's PATH.
func (w *Workspace) LookPath(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	var path string
	for _, kv := range w.Environ(nil) {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = v
			break
		}
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("executable %q not found in PATH", name)
}

// Resolve turns a user path into an absolute path: "~" maps to the job HOME
// and relative paths are taken from the job directory.
func (w *Workspace) Resolve(p string) string {
	switch {
	case p == "~":
		return w.Home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(w.Home, filepath.FromSlash(p[2:]))
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(w.Dir, filepath.FromSlash(p))
	}
}

// HomeRelative rewrites an absolute path under the job HOME as "~/...".
// Other paths are returned unchanged.
func (w *Workspace) HomeRelative(p string) string {
	rel, err := filepath.Rel(w.Home, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return p
	}
	if rel == "." {
		return "~"
	}
	return "~/" + filepath.ToSlash(rel)
}
