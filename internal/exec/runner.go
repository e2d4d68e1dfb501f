package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every subprocess call unless a runner overrides it.
const DefaultTimeout = 30 * time.Second

// Command is a single subprocess invocation. Args are passed as argv
// elements, never through a shell.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string
}

// String renders the command for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands and returns trimmed stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExitError is returned when a command exits non-zero, times out, or
// cannot be started.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out", e.Command)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// StderrOf returns the captured stderr of a failed command, if any.
func StderrOf(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return ""
}

// LocalRunner runs commands on the host with a per-call timeout.
type LocalRunner struct {
	Timeout time.Duration
}

// NewLocalRunner creates a runner with the given per-call timeout.
// A non-positive timeout selects DefaultTimeout.
func NewLocalRunner(timeout time.Duration) *LocalRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalRunner{Timeout: timeout}
}

// Run executes cmd and returns its trimmed stdout.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		exitErr := &ExitError{
			Command:  cmd.String(),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		if ctx.Err() == context.DeadlineExceeded {
			exitErr.TimedOut = true
		}
		var procErr *exec.ExitError
		if errors.As(err, &procErr) {
			exitErr.ExitCode = procErr.ExitCode()
		}
		return strings.TrimSpace(stdout.String()), exitErr
	}

	return strings.TrimSpace(stdout.String()), nil
}
