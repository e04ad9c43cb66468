package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"sort"
	"strings"

	"github.com/vk/mvnflow/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// inputFlag collects repeated -input name=value pairs.
type inputFlag map[string]string

func (f inputFlag) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k+"="+f[k])
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (f inputFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("input %q must have the form name=value", v)
	}
	f[strings.TrimSpace(name)] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	return ParseWithEnv(args, output, os.LookupEnv)
}

// ParseWithEnv is Parse with an injectable environment lookup.
func ParseWithEnv(args []string, output io.Writer, lookup func(string) (string, bool)) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("mvnflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
mvnflow - Runs a Maven CI pipeline: build, then test and verify, then deploy.

Usage:
  mvnflow [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a single .hcl file or a directory containing .hcl files.
    The built-in Maven workflow is used when omitted.

Secrets are read from the environment: secret "docker-registry-user" comes
from DOCKER_REGISTRY_USER.

Options:
`)
		flagSet.PrintDefaults()
	}

	inputs := inputFlag{}
	workflowFlag := flagSet.String("workflow", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	sourceFlag := flagSet.String("source", ".", "Project directory jobs check out.")
	flagSet.Var(inputs, "input", "Workflow input as name=value. May be repeated.")
	inputsFileFlag := flagSet.String("inputs-file", "", "YAML file with workflow inputs. -input values take precedence.")
	configFlag := flagSet.String("config", "", "TOML file configuring cache, artifact storage and maven.")
	runDirFlag := flagSet.String("run-dir", "", "Parent directory for run directories. Defaults to the system temp directory.")
	keepRunDirFlag := flagSet.Bool("keep-run-dir", false, "Keep the run directory after the run.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	eventsURLFlag := flagSet.String("events-url", "", "socket.io server receiving run events.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of jobs running at the same time.")

	if len(args) == 0 {
		slog.Debug("No arguments provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args()[1:], " "))}
	}
	slog.Debug("Workflow path determined.", "path", path)

	resolvedInputs := map[string]string{}
	if *inputsFileFlag != "" {
		fromFile, err := app.LoadInputsFile(*inputsFileFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		maps.Copy(resolvedInputs, fromFile)
	}
	maps.Copy(resolvedInputs, inputs)

	var storage app.StorageConfig
	if *configFlag != "" {
		sc, err := app.LoadStorageFile(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		storage = sc
	}
	storage.ApplyEnv(lookup)

	config, err := app.NewConfig(app.Config{
		WorkflowPath:    path,
		Source:          *sourceFlag,
		Inputs:          resolvedInputs,
		RunDir:          *runDirFlag,
		KeepRunDir:      *keepRunDirFlag,
		HealthcheckPort: *healthPortFlag,
		EventsURL:       *eventsURLFlag,
		LogFormat:       strings.ToLower(*logFormatFlag),
		LogLevel:        strings.ToLower(*logLevelFlag),
		WorkerCount:     *workersFlag,
		Storage:         storage,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "workflow", config.WorkflowPath, "source", config.Source)
	return config, false, nil
}
