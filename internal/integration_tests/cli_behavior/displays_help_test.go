package integration_tests

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vk/mvnflow/internal/cli"
)

// Test for: displays help
func TestCLI_DisplaysHelp_WhenNoArgumentsAreProvided(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	outW := &bytes.Buffer{}

	// --- Act ---
	appConfig, shouldExit, err := cli.Parse([]string{}, outW)

	// --- Assert ---
	if err != nil {
		t.Fatalf("cli.Parse() returned an unexpected error: %v", err)
	}
	if !shouldExit {
		t.Fatal("cli.Parse() should have indicated an exit, but it did not")
	}
	if !strings.Contains(outW.String(), "Usage:") {
		t.Errorf("expected output to contain 'Usage:', but got:\n%s", outW.String())
	}
	if !strings.Contains(outW.String(), "DOCKER_REGISTRY_USER") {
		t.Errorf("expected help to explain how secrets are passed, got:\n%s", outW.String())
	}
	if appConfig != nil {
		t.Errorf("expected a nil Config when displaying help, but got a non-nil config")
	}
}
