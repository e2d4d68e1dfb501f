package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/log"
)

const (
	// DefaultNPMRegistry is the public npm registry.
	DefaultNPMRegistry = "https://registry.npmjs.org/"
	// DefaultAccess is the publish access level.
	DefaultAccess = "public"
)

// NPMConfig configures the npm CLI publisher.
type NPMConfig struct {
	Registry string
	Access   string
	Token    string
	Retry    Retry
}

// NPM publishes through the npm CLI.
type NPM struct {
	runner exec.Runner
	cfg    NPMConfig
	logger *log.Logger

	authOnce sync.Once
	user     string
	authErr  error
}

// NewNPM creates an npm publisher.
func NewNPM(runner exec.Runner, cfg NPMConfig, logger *log.Logger) *NPM {
	if runner == nil {
		runner = exec.NewLocalRunner(0)
	}
	if cfg.Registry == "" {
		cfg.Registry = DefaultNPMRegistry
	}
	if cfg.Access == "" {
		cfg.Access = DefaultAccess
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetry
	}
	return &NPM{runner: runner, cfg: cfg, logger: log.OrDiscard(logger)}
}

// Name implements Publisher.
func (n *NPM) Name() string { return "npm" }

func (n *NPM) npm(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.Command{Dir: dir, Name: "npm", Args: args}
	if n.cfg.Token != "" {
		cmd.Env = []string{"NPM_TOKEN=" + n.cfg.Token, "NODE_AUTH_TOKEN=" + n.cfg.Token}
	}
	return n.runner.Run(ctx, cmd)
}

// Authenticate runs npm whoami once per publisher and caches the outcome.
func (n *NPM) Authenticate(ctx context.Context) error {
	n.authOnce.Do(func() {
		user, err := n.npm(ctx, "", "whoami", "--registry", n.cfg.Registry)
		if err != nil || strings.TrimSpace(user) == "" {
			n.authErr = errors.Wrap(errors.CodeAuthFailed, "Not authenticated with npm registry "+n.cfg.Registry, err).
				WithSuggestion("Run npm login or set NPM_TOKEN")
			return
		}
		n.user = strings.TrimSpace(user)
		n.logger.Debug("npm authenticated", "user", n.user, "registry", n.cfg.Registry)
	})
	return n.authErr
}

// Exists reports whether name@version is already in the registry. A 404
// from npm view means absent, not an error.
func (n *NPM) Exists(ctx context.Context, name, version string) (bool, error) {
	out, err := n.npm(ctx, "", "view", name+"@"+version, "version", "--registry", n.cfg.Registry)
	if err != nil {
		stderr := exec.StderrOf(err)
		if strings.Contains(stderr, "E404") || strings.Contains(stderr, "404 Not Found") ||
			strings.Contains(stderr, "is not in this registry") {
			return false, nil
		}
		return false, fmt.Errorf("npm view %s@%s: %w", name, version, err)
	}
	return strings.TrimSpace(out) != "", nil
}

type packageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Private bool   `json:"private"`
}

func validatePackage(pkg Package) *errors.Error {
	path := pkg.ManifestPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.CodePackageInvalid, fmt.Sprintf("cannot read %s", path), err)
	}
	var manifest packageJSON
	if err := json.Unmarshal(data, &manifest); err != nil {
		return errors.Wrap(errors.CodePackageInvalid, fmt.Sprintf("cannot parse %s", path), err)
	}
	switch {
	case manifest.Name == "":
		return errors.Newf(errors.CodePackageInvalid, "%s has no name", path)
	case manifest.Version == "":
		return errors.Newf(errors.CodePackageInvalid, "%s has no version", path)
	case manifest.Private:
		return errors.Newf(errors.CodePackageInvalid, "%s is private", path)
	case manifest.Version != pkg.Version:
		return errors.Newf(errors.CodePackageInvalid, "%s has version %s, expected %s", path, manifest.Version, pkg.Version)
	}
	return nil
}

// Publish publishes one package directory, retrying transient failures.
func (n *NPM) Publish(ctx context.Context, pkg Package, opts Options) Result {
	if err := validatePackage(pkg); err != nil {
		return failure(pkg, err)
	}

	if !opts.DryRun {
		if err := n.Authenticate(ctx); err != nil {
			return failure(pkg, errors.Wrap(errors.CodeAuthFailed, "Not authenticated", err))
		}
	}

	exists, err := n.Exists(ctx, pkg.Name, pkg.Version)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodeRegistryError, "existence check failed", err))
	}
	if exists {
		return failure(pkg, versionExists(n.cfg.Registry, pkg.Name, pkg.Version))
	}

	args := []string{"publish", pkg.Path, "--access", n.cfg.Access, "--registry", n.cfg.Registry}
	if opts.OTP != "" {
		args = append(args, "--otp", opts.OTP)
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := n.npm(ctx, pkg.Path, args...)
		if err != nil {
			n.logger.Warn("npm publish attempt failed", "package", pkg.Name, "attempt", attempt, "error", err)
			if isPermanentNPMError(err) {
				return "", backoff.Permanent(err)
			}
		}
		return out, err
	}, n.cfg.Retry.options()...)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodePublishFailed,
			fmt.Sprintf("npm publish %s@%s failed after %d attempt(s)", pkg.Name, pkg.Version, attempt), err))
	}

	return Result{Success: true, Name: pkg.Name, Version: pkg.Version, URL: n.packageURL(pkg.Name, pkg.Version), DryRun: opts.DryRun}
}

// isPermanentNPMError reports failures a retry cannot fix.
func isPermanentNPMError(err error) bool {
	stderr := exec.StderrOf(err)
	for _, marker := range []string{"E401", "E403", "EOTP", "EPUBLISHCONFLICT", "You cannot publish over"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func (n *NPM) packageURL(name, version string) string {
	if n.cfg.Registry == DefaultNPMRegistry {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return strings.TrimSuffix(n.cfg.Registry, "/") + "/" + name + "/" + version
}

// Unpublish removes name@version. It is never called automatically.
func (n *NPM) Unpublish(ctx context.Context, name, version string) Result {
	pkg := Package{Name: name, Version: version}
	if err := n.Authenticate(ctx); err != nil {
		return failure(pkg, errors.Wrap(errors.CodeAuthFailed, "Not authenticated", err))
	}
	exists, err := n.Exists(ctx, name, version)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodeRegistryError, "existence check failed", err))
	}
	if !exists {
		return failure(pkg, errors.Newf(errors.CodePackageMissing, "%s@%s not found in registry", name, version))
	}
	if _, err := n.npm(ctx, "", "unpublish", name+"@"+version, "--force", "--registry", n.cfg.Registry); err != nil {
		return failure(pkg, errors.Wrap(errors.CodePublishFailed, fmt.Sprintf("npm unpublish %s@%s failed", name, version), err).
			WithSuggestion("npm only allows unpublishing within 72 hours of publication"))
	}
	n.logger.Info("package unpublished", "package", name, "version", version)
	return Result{Success: true, Name: name, Version: version}
}
