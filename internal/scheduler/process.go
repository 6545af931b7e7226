package scheduler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Command describes how to run a function locally.
type Command struct {
	// Args is the program and its arguments.
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env holds function specific variables added on top of the inherited environment.
	Env map[string]string
	// MemoryMB overrides the reported memory size when positive.
	MemoryMB int
}

// CommandResolver resolves the command that runs a function.
type CommandResolver interface {
	Resolve(function string) (*Command, error)
}

// ProcessSpec is a fully resolved child process.
type ProcessSpec struct {
	Function string
	Args     []string
	Dir      string
	Env      []string
}

// Process is a running child.
type Process interface {
	// Wait blocks until the process exits and returns its exit status.
	Wait() error
	// Kill terminates the process. Calling it more than once is safe.
	Kill() error
	// PID returns the operating system process id.
	PID() int
}

// Launcher starts child processes.
type Launcher interface {
	Launch(spec ProcessSpec) (Process, error)
}

// SpawnError reports a function process that could not be started.
type SpawnError struct {
	Function string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting function %s: %v", e.Function, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExecLauncher starts functions as operating system processes.
type ExecLauncher struct {
	// Stdout and Stderr receive the child's output. They default to the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecLauncher creates a launcher that shares the parent's stdio.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Launch starts the process described by spec.
func (l *ExecLauncher) Launch(spec ProcessSpec) (Process, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	killOnce sync.Once
	killErr  error
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	p.killOnce.Do(func() {
		p.killErr = killProcessGroup(p.cmd)
	})
	return p.killErr
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}
