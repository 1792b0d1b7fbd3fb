package harness

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const commandTimeout = 60 * time.Second

// VecimportHarness runs a vecimport binary against an isolated config
// directory, so test runs never touch the user's ~/.vecimport state.
type VecimportHarness struct {
	binaryPath string
	workDir    string
}

// NewVecimportHarness wraps the binary at binaryPath with a fresh
// temporary work directory.
func NewVecimportHarness(binaryPath string) (*VecimportHarness, error) {
	if _, err := os.Stat(binaryPath); err != nil {
		return nil, fmt.Errorf("vecimport binary not found at %s: %w", binaryPath, err)
	}
	workDir, err := os.MkdirTemp("", "vecimport-e2e-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &VecimportHarness{binaryPath: binaryPath, workDir: workDir}, nil
}

// WorkDir returns the harness work directory, which also serves as the
// binary's config directory.
func (h *VecimportHarness) WorkDir() string {
	return h.workDir
}

// RunCommand executes a one-shot vecimport command and returns its stdout
// and stderr.
func (h *VecimportHarness) RunCommand(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.binaryPath, args...)
	cmd.Env = h.env(nil)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// StartDaemon launches `vecimport serve` bound to addr and returns the
// running process. The caller stops it with StopDaemon.
func (h *VecimportHarness) StartDaemon(ctx context.Context, redisURL, addr, exportDir string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, h.binaryPath, "serve", "--addr", addr, "--export-dir", exportDir)
	cmd.Env = h.env([]string{"REDIS_URL=" + redisURL})
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd, nil
}

// WaitForDaemon polls the daemon health endpoint until it answers with
// 200 or ctx expires.
func (h *VecimportHarness) WaitForDaemon(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon did not become ready: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// StopDaemon asks the daemon to shut down and waits for it to exit,
// killing it when the graceful path stalls.
func (h *VecimportHarness) StopDaemon(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

// Cleanup removes the harness work directory.
func (h *VecimportHarness) Cleanup() {
	if h.workDir != "" {
		os.RemoveAll(h.workDir)
	}
}

func (h *VecimportHarness) env(extra []string) []string {
	env := append(os.Environ(), "VECIMPORT_CONFIG_DIR="+h.workDir)
	return append(env, extra...)
}

// Build compiles the vecimport binary from the repository root and returns
// its path. Tests fall back to it when VECIMPORT_BINARY is not set.
func Build(ctx context.Context, repoRoot string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dir, err := os.MkdirTemp("", "vecimport-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	binaryPath := filepath.Join(dir, "vecimport")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binaryPath, ".")
	cmd.Dir = repoRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("go build failed: %w\n%s", err, out)
	}
	return binaryPath, nil
}
