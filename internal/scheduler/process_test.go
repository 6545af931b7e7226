//go:build unix

package scheduler

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecLauncher_ExitCode(t *testing.T) {
	sh := requireShell(t)

	proc, err := NewExecLauncher().Launch(ProcessSpec{
		Function: "exit",
		Args:     []string{sh, "-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Positive(t, proc.PID())

	assert.Equal(t, 3, exitCode(proc.Wait()))
}

func TestExecLauncher_Environment(t *testing.T) {
	sh := requireShell(t)

	var out bytes.Buffer
	launcher := &ExecLauncher{Stdout: &out, Stderr: os.Stderr}

	proc, err := launcher.Launch(ProcessSpec{
		Function: "env",
		Args:     []string{sh, "-c", `printf %s "$AWS_LAMBDA_FUNCTION_NAME"`},
		Env:      []string{"AWS_LAMBDA_FUNCTION_NAME=env"},
	})
	require.NoError(t, err)
	require.NoError(t, proc.Wait())
	assert.Equal(t, "env", out.String())
}

func TestExecLauncher_Kill(t *testing.T) {
	sh := requireShell(t)

	// The child sleep shares the shell's process group and is killed with it.
	proc, err := NewExecLauncher().Launch(ProcessSpec{
		Function: "sleepy",
		Args:     []string{sh, "-c", "sleep 30; exit 0"},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	require.NoError(t, proc.Kill())
	require.NoError(t, proc.Kill(), "killing twice is safe")

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not killed")
	}
}

func TestExecLauncher_EmptyCommand(t *testing.T) {
	_, err := NewExecLauncher().Launch(ProcessSpec{Function: "empty"})
	assert.Error(t, err)
}

func TestExecLauncher_MissingBinary(t *testing.T) {
	_, err := NewExecLauncher().Launch(ProcessSpec{
		Function: "missing",
		Args:     []string{"/nonexistent/lambdev-test-binary"},
	})
	assert.Error(t, err)
}
