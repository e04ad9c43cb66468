package integration_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/testutil"
	"github.com/vk/mvnflow/internal/workspace"
)

type echoInput struct {
	Value string `hcl:"value"`
}

func echoModule() registry.Module {
	return &testutil.SimpleModule{
		RunnerName: "echo",
		Runner: registry.Typed(func(_ context.Context, _ *workspace.Workspace, in *echoInput) (map[string]string, error) {
			return map[string]string{"value": in.Value}, nil
		}),
	}
}

func TestErrorHandling_StartupValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		hcl       string
		expectErr []string
	}{
		{
			name: "unknown runner",
			hcl: `
				workflow "w" {}
				job "a" {
					step "s" {
						uses = "does_not_exist"
					}
				}`,
			expectErr: []string{"job 'a', step 's': unknown runner 'does_not_exist'"},
		},
		{
			name: "missing required argument",
			hcl: `
				workflow "w" {}
				job "a" {
					step "s" {
						uses = "echo"
					}
				}`,
			expectErr: []string{"runner 'echo' requires argument 'value'"},
		},
		{
			name: "unknown argument",
			hcl: `
				workflow "w" {}
				job "a" {
					step "s" {
						uses = "echo"
						arguments {
							value = "x"
							extra = "y"
						}
					}
				}`,
			expectErr: []string{"runner 'echo' has no argument 'extra'"},
		},
		{
			name: "need on an unknown job",
			hcl: `
				workflow "w" {}
				job "a" {
					needs = ["ghost"]
					step "s" {
						uses = "echo"
						arguments {
							value = "x"
						}
					}
				}`,
			expectErr: []string{"needs unknown job 'ghost'"},
		},
		{
			name: "cycle between jobs",
			hcl: `
				workflow "w" {}
				job "a" {
					needs = ["b"]
					step "s" {
						uses = "echo"
						arguments {
							value = "x"
						}
					}
				}
				job "b" {
					needs = ["a"]
					step "s" {
						uses = "echo"
						arguments {
							value = "x"
						}
					}
				}`,
			expectErr: []string{"cycle detected"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
				Files:   map[string]string{"main.hcl": tc.hcl},
				Modules: []registry.Module{echoModule()},
			})

			// --- Assert ---
			require.Error(t, result.Err)
			require.Contains(t, result.Err.Error(), "application startup panicked")
			for _, want := range tc.expectErr {
				require.Contains(t, result.Err.Error(), want)
			}
			require.Nil(t, result.App)
		})
	}
}
