package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/mvnflow/internal/workspace"
)

// RunnerFunc runs one step. input is the value returned by NewInput after
// the step's arguments were decoded into it, or nil for runners without
// arguments. The returned map becomes the step's outputs.
type RunnerFunc func(ctx context.Context, ws *workspace.Workspace, input any) (map[string]string, error)

// RegisteredRunner holds the compiled Go parts of a runner.
type RegisteredRunner struct {
	// NewInput returns a pointer to a fresh input struct whose fields carry
	// `hcl` tags. Nil when the runner takes no arguments.
	NewInput func() any
	Fn       RunnerFunc
}

// Typed adapts a function taking its concrete input struct into a
// RegisteredRunner.
func Typed[T any](fn func(ctx context.Context, ws *workspace.Workspace, input *T) (map[string]string, error)) *RegisteredRunner {
	return &RegisteredRunner{
		NewInput: func() any { return new(T) },
		Fn: func(ctx context.Context, ws *workspace.Workspace, input any) (map[string]string, error) {
			in, ok := input.(*T)
			if !ok {
				return nil, fmt.Errorf("runner input has type %T, want %T", input, new(T))
			}
			return fn(ctx, ws, in)
		},
	}
}

// NoInput adapts a function without arguments into a RegisteredRunner.
func NoInput(fn func(ctx context.Context, ws *workspace.Workspace) (map[string]string, error)) *RegisteredRunner {
	return &RegisteredRunner{
		Fn: func(ctx context.Context, ws *workspace.Workspace, _ any) (map[string]string, error) {
			return fn(ctx, ws)
		},
	}
}

// RegisterRunner registers a runner under the name steps refer to in `uses`.
func (r *Registry) RegisterRunner(name string, handler *RegisteredRunner) {
	if _, exists := r.HandlerRegistry[name]; exists {
		panic(fmt.Sprintf("runner handler with name '%s' already registered", name))
	}
	if handler == nil || handler.Fn == nil {
		panic(fmt.Sprintf("runner handler '%s' has no function", name))
	}
	slog.Debug("Registering runner handler.", "name", name)
	r.HandlerRegistry[name] = handler
}
