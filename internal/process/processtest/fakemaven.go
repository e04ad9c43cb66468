// Package processtest provides a scripted stand-in for mvn so runners and
// whole workflows can be tested without Maven or a JDK.
package processtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/mvnflow/internal/maven"
	"github.com/vk/mvnflow/internal/process"
)

// Invocation records one call to the fake.
type Invocation struct {
	Name  string
	Args  []string
	Goals []string
	Dir   string
	Home  string
	Env   map[string]string
	// Settings is the content of ~/.m2/settings.xml at call time.
	Settings string
}

// FakeMaven answers help:evaluate queries and simulates the goals the
// built-in workflow uses:
//
//   - install writes the project jar and pom plus a third-party dependency
//     into the local repository, and a dist tarball next to the jar.
//   - test, verify and deploy fail unless the project jar is present in the
//     local repository, which is how a downloaded artifact bundle is
//     observed.
//   - deploy prints the registry user it was given.
type FakeMaven struct {
	Project maven.Coordinates
	// FailGoals maps a goal to the exit code it fails with.
	FailGoals map[string]int
	// Stdout lines printed for every goal invocation.
	Banner []string

	mu          sync.Mutex
	invocations []Invocation
}

// NewFakeMaven returns a fake for the given project.
func NewFakeMaven(groupID, artifactID, version string) *FakeMaven {
	return &FakeMaven{
		Project:   maven.Coordinates{GroupID: groupID, ArtifactID: artifactID, Version: version},
		FailGoals: map[string]int{},
	}
}

// Invocations returns a copy of every recorded call.
func (f *FakeMaven) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.invocations...)
}

// GoalInvocations returns the calls that ran goal.
func (f *FakeMaven) GoalInvocations(goal string) []Invocation {
	var out []Invocation
	for _, inv := range f.Invocations() {
		for _, g := range inv.Goals {
			if g == goal {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

// Run implements process.Runner.
func (f *FakeMaven) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	if err := ctx.Err(); err != nil {
		return process.Result{ExitCode: -1}, err
	}
	env := envMap(cmd.Env)
	home := userHome(env)
	inv := Invocation{Name: cmd.Name, Args: cmd.Args, Dir: cmd.Dir, Home: home, Env: env}
	if b, err := os.ReadFile(maven.SettingsPath(home)); err == nil {
		inv.Settings = string(b)
	}
	var expression string
	for _, a := range cmd.Args {
		switch {
		case strings.HasPrefix(a, "-Dexpression="):
			expression = strings.TrimPrefix(a, "-Dexpression=")
		case strings.HasPrefix(a, "-"), strings.Contains(a, ":"):
		default:
			inv.Goals = append(inv.Goals, a)
		}
	}
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	stdout, stderr := orDiscard(cmd.Stdout), orDiscard(cmd.Stderr)
	if expression != "" {
		return f.evaluate(expression, home, stdout, stderr, cmd)
	}

	repo := maven.LocalRepositoryPath(home)
	for _, line := range f.Banner {
		fmt.Fprintln(stdout, line)
	}
	for _, goal := range inv.Goals {
		if code, ok := f.FailGoals[goal]; ok {
			fmt.Fprintf(stderr, "[ERROR] goal %s failed\n", goal)
			return process.Result{ExitCode: code}, &process.ExitError{Command: cmd.String(), ExitCode: code}
		}
		switch goal {
		case "install":
			if err := f.install(repo); err != nil {
				fmt.Fprintf(stderr, "[ERROR] %v\n", err)
				return process.Result{ExitCode: 1}, &process.ExitError{Command: cmd.String(), ExitCode: 1}
			}
		case "test", "verify", "deploy":
			jar, _ := maven.ArtifactFile(repo, f.Project, "jar")
			if _, err := os.Stat(jar); err != nil {
				fmt.Fprintf(stderr, "[ERROR] project artifact missing: %s\n", jar)
				return process.Result{ExitCode: 1}, &process.ExitError{Command: cmd.String(), ExitCode: 1}
			}
			if goal == "deploy" {
				fmt.Fprintf(stdout, "Deploying %s to %s as %s\n", f.Project, env["DOCKER_REGISTRY_URL"], env["DOCKER_REGISTRY_USER"])
			}
		}
		fmt.Fprintf(stdout, "[INFO] %s: BUILD SUCCESS\n", goal)
	}
	return process.Result{}, nil
}

func (f *FakeMaven) evaluate(expression, home string, stdout, stderr io.Writer, cmd process.Command) (process.Result, error) {
	var value string
	switch expression {
	case maven.ExprGroupID:
		value = f.Project.GroupID
	case maven.ExprArtifactID:
		value = f.Project.ArtifactID
	case maven.ExprVersion:
		value = f.Project.Version
	case maven.ExprLocalRepository:
		value = maven.LocalRepositoryPath(home)
	default:
		value = "null object or invalid expression"
	}
	if code, ok := f.FailGoals["help:evaluate"]; ok {
		fmt.Fprintln(stderr, "[ERROR] Non-parseable POM")
		return process.Result{ExitCode: code}, &process.ExitError{Command: cmd.String(), ExitCode: code}
	}
	_, _ = io.WriteString(stdout, value)
	return process.Result{}, nil
}

func (f *FakeMaven) install(repo string) error {
	files := map[string]string{}
	jar, err := maven.ArtifactFile(repo, f.Project, "jar")
	if err != nil {
		return err
	}
	pom, _ := maven.ArtifactFile(repo, f.Project, "pom")
	dist, _ := maven.ArtifactFile(repo, f.Project, "tar.gz")
	files[jar] = "jar:" + f.Project.String()
	files[pom] = "<project>" + f.Project.String() + "</project>"
	files[dist] = "dist tarball"
	dep, _ := maven.ArtifactFile(repo, maven.Coordinates{GroupID: "org.thirdparty", ArtifactID: "lib", Version: "1.0"}, "jar")
	files[dep] = "third-party dependency"
	for p, content := range files {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// userHome mirrors how the JVM would pick user.home: MAVEN_OPTS wins over HOME.
func userHome(env map[string]string) string {
	for _, opt := range strings.Fields(env["MAVEN_OPTS"]) {
		if v, ok := strings.CutPrefix(opt, "-Duser.home="); ok {
			return v
		}
	}
	return env["HOME"]
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
