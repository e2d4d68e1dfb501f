package health

import (
	"context"
	osexec "os/exec"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/exec"
)

// GitChecker checks that git is installed and runnable.
type GitChecker struct {
	runner   exec.Runner
	lookPath func(string) (string, error)
}

// NewGitChecker creates a git binary checker.
func NewGitChecker(runner exec.Runner) *GitChecker {
	if runner == nil {
		runner = exec.NewLocalRunner(0)
	}
	return &GitChecker{runner: runner, lookPath: osexec.LookPath}
}

// Name returns the name of this check.
func (c *GitChecker) Name() string {
	return "git-binary"
}

// Check returns:
//   - Healthy if git >= 2.0 runs
//   - Degraded if git runs but is older or its version cannot be read
//   - Unhealthy if git is missing or fails to run
func (c *GitChecker) Check(ctx context.Context) *Result {
	gitPath, err := c.lookPath("git")
	if err != nil {
		return Unhealthy("git command not found in PATH").
			WithDetail("error", err.Error()).
			WithSuggestion("Install Git from https://git-scm.com/downloads")
	}

	output, err := c.runner.Run(ctx, exec.Command{Name: "git", Args: []string{"--version"}})
	if err != nil {
		return Unhealthy("failed to execute git").
			WithDetail("error", err.Error()).
			WithDetail("git_path", gitPath)
	}

	version := parseGitVersion(output)
	if version == "" {
		return Degraded("git installed but version cannot be parsed").
			WithDetail("git_path", gitPath).
			WithDetail("version_output", output)
	}

	if major, err := strconv.Atoi(strings.SplitN(version, ".", 2)[0]); err == nil && major < 2 {
		return Degraded("git version is older than 2.0").
			WithDetail("git_path", gitPath).
			WithDetail("version", version).
			WithSuggestion("Upgrade Git to version 2.0 or later")
	}

	return Healthy("git is installed").
		WithDetail("git_path", gitPath).
		WithDetail("version", version)
}

// parseGitVersion extracts "2.42.0" from "git version 2.42.0.windows.1".
func parseGitVersion(output string) string {
	parts := strings.Fields(output)
	if len(parts) < 3 {
		return ""
	}
	version := parts[2]
	if version == "" || version[0] < '0' || version[0] > '9' {
		return ""
	}
	for _, suffix := range []string{".windows", ".darwin", ".linux"} {
		if idx := strings.Index(version, suffix); idx > 0 {
			version = version[:idx]
		}
	}
	return version
}
