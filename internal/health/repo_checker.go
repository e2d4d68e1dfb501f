package health

import (
	"context"
	"os"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/exec"
)

// RepositoryChecker checks that dir is inside a git working tree.
type RepositoryChecker struct {
	runner exec.Runner
	dir    string
}

// NewRepositoryChecker creates a repository checker for dir.
func NewRepositoryChecker(runner exec.Runner, dir string) *RepositoryChecker {
	return &RepositoryChecker{runner: runner, dir: dir}
}

// Name returns the name of this check.
func (c *RepositoryChecker) Name() string {
	return "git-repository"
}

// Check runs git rev-parse in dir.
func (c *RepositoryChecker) Check(ctx context.Context) *Result {
	out, err := c.runner.Run(ctx, exec.Command{Dir: c.dir, Name: "git", Args: []string{"rev-parse", "--git-dir"}})
	if err != nil {
		return Unhealthy("not a git repository").
			WithDetail("dir", c.dir).
			WithSuggestion("Run the release from inside the project's git working tree")
	}
	return Healthy("git repository found").WithDetail("git_dir", out)
}

// CleanTreeChecker reports uncommitted changes. A dirty tree only
// degrades readiness; the release commit stages files explicitly.
type CleanTreeChecker struct {
	runner exec.Runner
	dir    string
}

// NewCleanTreeChecker creates a clean-tree checker for dir.
func NewCleanTreeChecker(runner exec.Runner, dir string) *CleanTreeChecker {
	return &CleanTreeChecker{runner: runner, dir: dir}
}

// Name returns the name of this check.
func (c *CleanTreeChecker) Name() string {
	return "clean-tree"
}

// Check runs git status --porcelain in dir.
func (c *CleanTreeChecker) Check(ctx context.Context) *Result {
	out, err := c.runner.Run(ctx, exec.Command{Dir: c.dir, Name: "git", Args: []string{"status", "--porcelain"}})
	if err != nil {
		return Degraded("could not read working tree status").WithDetail("error", err.Error())
	}
	if strings.TrimSpace(out) == "" {
		return Healthy("working tree is clean")
	}
	changed := strings.Split(strings.TrimSpace(out), "\n")
	return Degraded("working tree has uncommitted changes").
		WithDetail("changed_files", len(changed)).
		WithSuggestion("Commit or stash changes before releasing")
}

// ManifestChecker checks that the root manifest exists.
type ManifestChecker struct {
	path string
}

// NewManifestChecker creates a manifest checker for path.
func NewManifestChecker(path string) *ManifestChecker {
	return &ManifestChecker{path: path}
}

// Name returns the name of this check.
func (c *ManifestChecker) Name() string {
	return "root-manifest"
}

// Check stats the manifest.
func (c *ManifestChecker) Check(context.Context) *Result {
	info, err := os.Stat(c.path)
	if err != nil || info.IsDir() {
		return Unhealthy("root manifest not found").
			WithDetail("path", c.path).
			WithSuggestion("Create a package.json at the repository root or configure release.manifests")
	}
	return Healthy("root manifest found").WithDetail("path", c.path)
}
