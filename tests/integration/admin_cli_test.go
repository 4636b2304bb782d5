package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// StorefrontAdminCLI provides helpers for testing the storefront-admin CLI
type StorefrontAdminCLI struct {
	T           *testing.T
	Harness     *TestHarness
	binPath     string
	sessionFile string
}

// NewStorefrontAdminCLI creates a new CLI test wrapper with a test server
func NewStorefrontAdminCLI(t *testing.T) *StorefrontAdminCLI {
	t.Helper()

	harness := NewTestHarness(t)

	binPath := filepath.Join(t.TempDir(), "storefront-admin")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/storefront-admin")
	cmd.Dir = getProjectRoot()
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build storefront-admin CLI: %v\n%s", err, out)
	}

	return &StorefrontAdminCLI{
		T:           t,
		Harness:     harness,
		binPath:     binPath,
		sessionFile: filepath.Join(t.TempDir(), "session"),
	}
}

// getProjectRoot returns the project root directory
func getProjectRoot() string {
	// Walk up from current dir to find go.mod
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// CLIResult represents the output of a CLI command
type CLIResult struct {
	T      *testing.T
	Stdout string
	Stderr string
	Err    error
}

func (c *StorefrontAdminCLI) command(args ...string) *exec.Cmd {
	fullArgs := append([]string{"--url", c.Harness.BaseURL, "--session-file", c.sessionFile}, args...)
	return exec.Command(c.binPath, fullArgs...)
}

// Run executes the storefront-admin CLI with the given arguments
func (c *StorefrontAdminCLI) Run(args ...string) *CLIResult {
	c.T.Helper()

	cmd := c.command(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return &CLIResult{
		T:      c.T,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// Login runs the interactive login, typing the key and the code as they
// are delivered
func (c *StorefrontAdminCLI) Login() *CLIResult {
	c.T.Helper()

	cmd := c.command("login")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.T.Fatalf("Failed to open stdin: %v", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		c.T.Fatalf("Failed to start CLI: %v", err)
	}

	c.typeDelivered(stdin, "Key", 1)
	c.typeDelivered(stdin, "Code", 2)
	_ = stdin.Close()

	err = cmd.Wait()
	return &CLIResult{
		T:      c.T,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// typeDelivered waits for the n-th notification and writes its field to stdin
func (c *StorefrontAdminCLI) typeDelivered(stdin io.Writer, field string, n int) {
	c.T.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msgs := c.Harness.Sink.Messages()
		if len(msgs) >= n {
			if _, err := io.WriteString(stdin, msgs[n-1].Value(field)+"\n"); err != nil {
				c.T.Fatalf("Failed to write %s: %v", field, err)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.T.Fatalf("Timed out waiting for %s notification", field)
}

// Success asserts the command succeeded
func (r *CLIResult) Success() *CLIResult {
	r.T.Helper()
	if r.Err != nil {
		r.T.Errorf("Expected command to succeed, but got error: %v\nStdout: %s\nStderr: %s",
			r.Err, r.Stdout, r.Stderr)
	}
	return r
}

// Failure asserts the command failed
func (r *CLIResult) Failure() *CLIResult {
	r.T.Helper()
	if r.Err == nil {
		r.T.Errorf("Expected command to fail, but it succeeded\nStdout: %s", r.Stdout)
	}
	return r
}

// Contains asserts stdout contains a substring
func (r *CLIResult) Contains(substr string) *CLIResult {
	r.T.Helper()
	if !strings.Contains(r.Stdout, substr) {
		r.T.Errorf("Expected output to contain %q\nGot: %s", substr, r.Stdout)
	}
	return r
}

// JSON parses the stdout as JSON into the target
func (r *CLIResult) JSON(target interface{}) *CLIResult {
	r.T.Helper()
	if err := json.Unmarshal([]byte(r.Stdout), target); err != nil {
		r.T.Errorf("Failed to parse JSON output: %v\nOutput: %s", err, r.Stdout)
	}
	return r
}

// ---- CLI Integration Tests ----

func TestCLISessionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the CLI binary")
	}
	cli := NewStorefrontAdminCLI(t)

	t.Run("status without session fails", func(t *testing.T) {
		cli.Run("status").Failure()
	})

	t.Run("login with key and code", func(t *testing.T) {
		cli.Login().
			Success().
			Contains("Logged in.")

		info, err := os.Stat(cli.sessionFile)
		if err != nil {
			t.Fatalf("Expected session file: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("Expected session file mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("status reports the session", func(t *testing.T) {
		cli.Run("status").
			Success().
			Contains("Logged in.")
	})

	t.Run("status as JSON", func(t *testing.T) {
		var body map[string]interface{}
		cli.Run("--output", "json", "status").
			Success().
			JSON(&body)

		if body["valid"] != true {
			t.Errorf("Expected valid=true, got %v", body["valid"])
		}
		if fp, _ := body["fingerprint"].(string); !strings.HasPrefix(fp, "fp_") && !strings.HasPrefix(fp, "fb_") {
			t.Errorf("Unexpected fingerprint %q", fp)
		}
	})

	t.Run("login again is a no-op", func(t *testing.T) {
		cli.Run("login").
			Success().
			Contains("Already logged in")
	})

	t.Run("logout", func(t *testing.T) {
		cli.Run("logout").
			Success().
			Contains("Logged out.")
		cli.Run("status").Failure()
	})
}
