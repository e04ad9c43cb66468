package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/mvnflow/internal/config"
	"github.com/vk/mvnflow/internal/ctxlog"
)

// ValidateWorkflow checks every step against the registered runners: the
// runner must exist, every argument must be a field of its input struct and
// every required field must be set.
func (r *Registry) ValidateWorkflow(ctx context.Context, wf *config.Workflow) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, job := range wf.Jobs {
		for _, step := range job.Steps {
			where := fmt.Sprintf("job '%s', step '%s'", job.Name, step.ID)
			handler, ok := r.HandlerRegistry[step.Uses]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: unknown runner '%s'", where, step.Uses))
				continue
			}

			if handler.NewInput == nil {
				if len(step.Arguments) > 0 {
					errs = append(errs, fmt.Sprintf("%s: runner '%s' takes no arguments", where, step.Uses))
				}
				continue
			}

			fields, err := InputFields(handler.NewInput())
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			for _, name := range sortedKeys(step.Arguments) {
				if _, ok := fields[name]; !ok {
					errs = append(errs, fmt.Sprintf("%s: runner '%s' has no argument '%s'", where, step.Uses, name))
				}
			}
			for _, name := range sortedKeys(fields) {
				if fields[name] && step.Arguments[name] == nil {
					errs = append(errs, fmt.Sprintf("%s: runner '%s' requires argument '%s'", where, step.Uses, name))
				}
			}
			logger.Debug("Validated step against runner.", "job", job.Name, "step", step.ID, "runner", step.Uses)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("workflow validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// InputFields maps the `hcl` tag names of an input struct pointer to whether
// the field is required.
func InputFields(input any) (map[string]bool, error) {
	t := reflect.TypeOf(input)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("runner input must be a pointer to a struct, got %T", input)
	}
	t = t.Elem()
	fields := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, ok := f.Tag.Lookup("hcl")
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		if parts[0] == "" {
			continue
		}
		fields[parts[0]] = !(len(parts) > 1 && parts[1] == "optional")
	}
	return fields, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
