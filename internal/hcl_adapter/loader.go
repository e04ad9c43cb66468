package hcl_adapter

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/fsutil"
)

//go:embed workflows/maven.hcl
var defaultWorkflow []byte

// DefaultWorkflowName is the file name the built-in workflow is parsed under.
const DefaultWorkflowName = "builtin/maven.hcl"

// DefaultWorkflow returns the source of the built-in Maven workflow.
func DefaultWorkflow() []byte {
	out := make([]byte, len(defaultWorkflow))
	copy(out, defaultWorkflow)
	return out
}

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths and merges them into one
// workflow. Without paths the built-in workflow is loaded.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	var files []*hcl.File
	var names []string

	if len(paths) == 0 {
		logger.Debug("No workflow path given, using the built-in workflow.")
		f, diags := parser.ParseHCL(defaultWorkflow, DefaultWorkflowName)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse built-in workflow: %w", diags)
		}
		files = append(files, f)
		names = append(names, DefaultWorkflowName)
	} else {
		hclFiles, err := findAllHCLFiles(paths)
		if err != nil {
			return nil, nil, err
		}
		if len(hclFiles) == 0 {
			return nil, nil, fmt.Errorf("no .hcl files found in %v", paths)
		}
		logger.Debug("Discovered HCL files.", "count", len(hclFiles))
		for _, path := range hclFiles {
			f, diags := parser.ParseHCLFile(path)
			if diags.HasErrors() {
				return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
			}
			files = append(files, f)
			names = append(names, path)
		}
	}

	var workflows []*WorkflowBlock
	var jobs []*JobBlock
	for i, f := range files {
		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", names[i], diags)
		}
		workflows = append(workflows, root.Workflows...)
		jobs = append(jobs, root.Jobs...)
	}

	switch len(workflows) {
	case 0:
		return nil, nil, fmt.Errorf("no workflow block found in %v", names)
	case 1:
	default:
		return nil, nil, fmt.Errorf("expected exactly one workflow block, found %d", len(workflows))
	}

	wf, err := translateWorkflow(ctx, workflows[0], jobs)
	if err != nil {
		return nil, nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, nil, err
	}

	logger.Debug("HCL loading complete.", "workflow", wf.Name, "jobs", len(wf.Jobs), "inputs", len(wf.Inputs), "secrets", len(wf.Secrets))
	return &config.Model{Workflow: wf, Files: names}, NewConverter(), nil
}

// findAllHCLFiles walks all given paths and returns a sorted, de-duplicated
// list of .hcl files. A named path that does not exist is an error.
func findAllHCLFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var allFiles []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			allFiles = append(allFiles, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		found, err := fsutil.FindFiles(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
