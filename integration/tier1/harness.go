//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/tmplsync/internal/testutil"
)

const (
	binaryName     = "tmplsync"
	defaultTimeout = 5 * time.Minute
)

// Harness builds the tmplsync binary once and runs it against a fake GitHub
// host with a scratch project directory
type Harness struct {
	t           *testing.T
	binary      string
	projectRoot string
	configPath  string
	keepOnFail  bool
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	work := t.TempDir()
	return &Harness{
		t:           t,
		binary:      filepath.Join(work, binaryName),
		projectRoot: filepath.Join(work, "project"),
		configPath:  filepath.Join(work, "config.yaml"),
		keepOnFail:  os.Getenv("INTEGRATION_KEEP_PROJECT") == "1",
	}
}

// BuildBinary compiles cmd/tmplsync into the harness work directory
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	moduleRoot, err := testutil.ProjectRoot()
	if err != nil {
		return fmt.Errorf("get module root: %w", err)
	}

	h.t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/tmplsync")
	cmd.Dir = moduleRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// WriteConfig points the binary at host and writes the target list
func (h *Harness) WriteConfig(host *testutil.FakeHost, targets string) error {
	h.t.Helper()
	content := fmt.Sprintf(`source:
  raw_base_url: %s
  api_base_url: %s
http:
  timeout: 10s
paths:
  project_root: %s
targets:
%s`, host.RawBaseURL(), host.APIBaseURL(), h.projectRoot, targets)

	return os.WriteFile(h.configPath, []byte(content), 0o600)
}

// ResetProject removes and recreates the project directory
func (h *Harness) ResetProject() error {
	h.t.Helper()
	if err := os.RemoveAll(h.projectRoot); err != nil {
		return err
	}
	return os.MkdirAll(h.projectRoot, 0o755)
}

// Cleanup reports where the project directory was left when the test failed
func (h *Harness) Cleanup() {
	h.t.Helper()
	if h.keepOnFail && h.t.Failed() {
		kept, err := os.MkdirTemp("", "tmplsync-tier1-*")
		if err != nil {
			h.t.Logf("Warning: failed to keep project: %v", err)
			return
		}
		if err := os.Rename(h.projectRoot, filepath.Join(kept, "project")); err != nil {
			h.t.Logf("Warning: failed to keep project: %v", err)
			return
		}
		h.t.Logf("Test failed and INTEGRATION_KEEP_PROJECT=1, project kept in %s", kept)
	}
}

// Run executes the binary with the harness config and returns stdout, stderr
// and the exit code
func (h *Harness) Run(ctx context.Context, env []string, args ...string) (string, string, int, error) {
	h.t.Helper()

	args = append([]string{"--config", h.configPath}, args...)
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = h.projectRoot
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes the binary and fails the test if it returns non-zero
func (h *Harness) MustRun(ctx context.Context, env []string, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, env, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout, stderr
}

// WriteFile writes a file below the project root
func (h *Harness) WriteFile(rel, content string) error {
	h.t.Helper()
	path := filepath.Join(h.projectRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// ReadFile reads a file below the project root
func (h *Harness) ReadFile(rel string) (string, error) {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.projectRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FileExists checks if a regular file exists below the project root
func (h *Harness) FileExists(rel string) bool {
	h.t.Helper()
	info, err := os.Stat(filepath.Join(h.projectRoot, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
