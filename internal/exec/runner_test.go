package exec

import (
	"context"
	"errors"
	osexec "os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunnerCapturesStdout(t *testing.T) {
	if _, err := osexec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewLocalRunner(5 * time.Second)

	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo '  hello  '"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestLocalRunnerExitError(t *testing.T) {
	if _, err := osexec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewLocalRunner(5 * time.Second)

	_, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "boom", exitErr.Stderr)
	assert.Equal(t, "boom", StderrOf(err))
	assert.Contains(t, err.Error(), "sh -c")
}

func TestLocalRunnerTimeout(t *testing.T) {
	if _, err := osexec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := NewLocalRunner(50 * time.Millisecond)

	_, err := r.Run(context.Background(), Command{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.True(t, exitErr.TimedOut)
}

func TestLocalRunnerMissingBinary(t *testing.T) {
	r := NewLocalRunner(0)
	assert.Equal(t, DefaultTimeout, r.Timeout)

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-binary-xyz"})
	require.Error(t, err)
}

func TestFakeRunnerRules(t *testing.T) {
	f := NewFakeRunner().
		On("git rev-parse", Response{Output: "abc"}).
		OnTimes("git push", 1, Response{Err: errors.New("rejected")})

	ctx := context.Background()
	out, err := f.Run(ctx, Command{Name: "git", Args: []string{"rev-parse", "HEAD"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", out)

	_, err = f.Run(ctx, Command{Name: "git", Args: []string{"push", "origin"}})
	assert.Error(t, err)
	_, err = f.Run(ctx, Command{Name: "git", Args: []string{"push", "origin"}})
	assert.NoError(t, err, "OnTimes rule should be exhausted")

	assert.True(t, f.Called("git push"))
	assert.False(t, f.Called("git tag"))
	assert.Len(t, f.Calls(), 3)
}
