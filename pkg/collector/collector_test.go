package collector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(script string) *Command {
	return &Command{Name: "sh", Args: []string{"-c", script}}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestJStack(t *testing.T) {
	c := JStack(4242, nil)
	assert.Equal(t, "jstack", c.Name)
	assert.Equal(t, []string{"-l", "4242"}, c.Args)
	assert.Equal(t, "jstack -l 4242", c.String())
}

func TestCommand_Capture(t *testing.T) {
	requireShell(t)

	var logs bytes.Buffer
	c := shell(`printf '"main" prio=5 tid=0x1 nid=0x2 runnable\n'`)
	c.Logger = log.New(&logs, "", 0)

	out, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\"main\" prio=5 tid=0x1 nid=0x2 runnable\n", out)
	assert.Contains(t, logs.String(), "✅")
}

func TestCommand_Failures(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name     string
		script   string
		exitCode int
		stderr   string
		target   error
	}{
		{"non-zero exit", `echo "12345: Unable to open socket file" >&2; exit 1`, 1, "Unable to open socket file", nil},
		{"stderr noise", `echo '"main" prio=5'; echo 'warning: attach slow' >&2`, 0, "attach slow", ErrDiagnosticOutput},
		{"empty output", `printf '   \n'`, 0, "", ErrEmptyOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := shell(tt.script).Capture(context.Background())
			assert.Empty(t, out)

			var toolErr *ToolError
			require.True(t, errors.As(err, &toolErr))
			assert.Equal(t, tt.exitCode, toolErr.ExitCode)
			assert.Contains(t, toolErr.Stderr, tt.stderr)
			assert.Contains(t, toolErr.Command, "sh -c")
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestCommand_MissingBinary(t *testing.T) {
	c := &Command{Name: "definitely-not-a-jvm-tool-xyz", Args: []string{"-l", "1"}}
	_, err := c.Capture(context.Background())

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, -1, toolErr.ExitCode)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Contains(t, err.Error(), "definitely-not-a-jvm-tool-xyz -l 1 failed")
}

func TestCommand_ContextCanceled(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := shell("sleep 5").Capture(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestToolError_Message(t *testing.T) {
	err := &ToolError{Command: "jstack -l 1", ExitCode: 1, Stderr: "1: Unable to open socket file\nmore\n"}
	assert.Equal(t, "jstack -l 1 failed (exit 1): 1: Unable to open socket file", err.Error())

	err = &ToolError{Command: "jstack -l 1", Err: ErrEmptyOutput}
	assert.Equal(t, "jstack -l 1 failed: command produced no output", err.Error())
}

func TestFiles_Capture(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "stackinspector-collector")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	first := filepath.Join(tempDir, "a.txt")
	second := filepath.Join(tempDir, "b.txt")
	require.NoError(t, os.WriteFile(first, []byte("first"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("second"), 0644))

	src := &Files{Paths: []string{first, second}}
	ctx := context.Background()

	out, err := src.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = src.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	_, err = src.Capture(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFiles_Errors(t *testing.T) {
	src := &Files{Paths: []string{"/nonexistent/dump.txt"}}
	_, err := src.Capture(context.Background())
	assert.True(t, os.IsNotExist(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Files{Paths: []string{"x"}}).Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
