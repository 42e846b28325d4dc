package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CLI runs sfs against a throwaway working directory. The default device
// image, disk.img, lives in that directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI returns a CLI rooted in a fresh temp directory with no image.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{},
	}
}

// NewFormattedCLI returns a CLI whose default image is already formatted.
func NewFormattedCLI(t *testing.T) *CLI {
	t.Helper()

	c := NewCLI(t)
	c.MustRun("format")

	return c
}

func (r *CLI) exec(stdin io.Reader, args []string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"sfs", "--cwd", r.Dir}, args...)
	code := Run(stdin, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// Run executes sfs with args (without "sfs" and "--cwd") and returns
// stdout, stderr and the exit code.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.exec(nil, args)
}

// RunWithInput is Run with stdin, used for write and shell scripts.
func (r *CLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	return r.exec(strings.NewReader(stdin), args)
}

// MustRun fails the test on a non-zero exit. Returns trimmed stdout.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("sfs %s: exit %d\nstderr: %s", strings.Join(args, " "), code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail fails the test if the command succeeds or prints to stdout.
// Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("sfs %s: should have failed\nstdout: %s", strings.Join(args, " "), stdout)
	}

	if stdout != "" {
		r.t.Fatalf("sfs %s: failed but wrote stdout\nstdout: %s", strings.Join(args, " "), stdout)
	}

	return strings.TrimSpace(stderr)
}

// Put replaces the contents of file name on the image with content.
func (r *CLI) Put(name, content string) {
	r.t.Helper()

	if _, stderr, code := r.RunWithInput(content, "write", name); code != 0 {
		r.t.Fatalf("sfs write %s: exit %d\nstderr: %s", name, code, stderr)
	}
}

// Cat returns the full contents of file name on the image, untrimmed.
func (r *CLI) Cat(name string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run("cat", name)
	if code != 0 {
		r.t.Fatalf("sfs cat %s: exit %d\nstderr: %s", name, code, stderr)
	}

	return stdout
}

// Path returns an absolute host path inside the working directory.
func (r *CLI) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// ImageSize returns the size of the host image file, failing if it is missing.
func (r *CLI) ImageSize(name string) int64 {
	r.t.Helper()

	info, err := os.Stat(r.Path(name))
	if err != nil {
		r.t.Fatalf("stat image %s: %v", name, err)
	}

	return info.Size()
}

// WriteHostFile writes a host file in the working directory.
func (r *CLI) WriteHostFile(name, content string) {
	r.t.Helper()

	if err := os.WriteFile(r.Path(name), []byte(content), 0o600); err != nil {
		r.t.Fatalf("write host file %s: %v", name, err)
	}
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
