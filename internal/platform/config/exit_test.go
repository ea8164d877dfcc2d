package config_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/louisbranch/campaignlog/internal/platform/config"
)

// Exit paths run in a subprocess because os.Exit cannot be intercepted in-process.
func TestExitCodef_UsesCode(t *testing.T) {
	if os.Getenv("TEST_EXITCODEF_SUBPROCESS") == "1" {
		config.ExitCodef(3, "integrity: %s", "mismatch")
		return
	}

	out, exitErr := runSubprocess(t, "^TestExitCodef_UsesCode$", "TEST_EXITCODEF_SUBPROCESS=1")
	if exitErr.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", exitErr.ExitCode())
	}
	if !strings.Contains(out, "integrity: mismatch") {
		t.Fatalf("expected output to contain message, got %q", out)
	}
}

func runSubprocess(t *testing.T, pattern, env string) (string, *exec.ExitError) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run="+pattern)
	cmd.Env = append(os.Environ(), env)

	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	return string(out), exitErr
}
