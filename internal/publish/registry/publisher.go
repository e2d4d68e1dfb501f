// Package registry publishes release packages to a package registry and
// exposes unpublish as an explicit rollback primitive.
package registry

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/log"
)

// Package is one publishable unit.
type Package struct {
	Name     string
	Version  string
	Path     string // directory containing the manifest
	// Manifest is the manifest the plan bumped. Empty means
	// package.json under Path.
	Manifest string
	Priority int
}

// ManifestPath returns the manifest checked before publishing.
func (p Package) ManifestPath() string {
	if p.Manifest != "" {
		return p.Manifest
	}
	return filepath.Join(p.Path, "package.json")
}

// Options tune a publish call.
type Options struct {
	DryRun bool
	OTP    string
}

// Result reports the publish or unpublish of one package.
type Result struct {
	Success bool
	Name    string
	Version string
	URL     string
	DryRun  bool
	Errors  []*errors.Error
}

// BatchResult reports PublishAll.
type BatchResult struct {
	Success bool
	Results []Result
	URLs    []string
	Errors  []*errors.Error
}

// Publisher is a package registry. Exists is the idempotency guard that
// Publish consults before uploading.
type Publisher interface {
	Name() string
	Authenticate(ctx context.Context) error
	Exists(ctx context.Context, name, version string) (bool, error)
	Publish(ctx context.Context, pkg Package, opts Options) Result
	Unpublish(ctx context.Context, name, version string) Result
}

// Retry is the fixed retry policy for registry uploads.
type Retry struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultRetry tries three times, two seconds apart.
var DefaultRetry = Retry{Attempts: 3, Delay: 2 * time.Second}

func (r Retry) options() []backoff.RetryOption {
	attempts := r.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(r.Delay)),
		backoff.WithMaxTries(attempts),
	}
}

// PublishAll publishes pkgs in priority order and stops at the first
// failure. Packages after the failure are reported as skipped.
func PublishAll(ctx context.Context, p Publisher, pkgs []Package, opts Options, logger *log.Logger) BatchResult {
	logger = log.OrDiscard(logger)
	ordered := make([]Package, len(pkgs))
	copy(ordered, pkgs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	batch := BatchResult{Success: true}
	stopped := false
	for _, pkg := range ordered {
		if stopped {
			skipped := errors.Newf(errors.CodePublishSkipped,
				"Publishing stopped due to previous failure; %s@%s not published", pkg.Name, pkg.Version)
			batch.Results = append(batch.Results, Result{Name: pkg.Name, Version: pkg.Version, Errors: []*errors.Error{skipped}})
			batch.Errors = append(batch.Errors, skipped)
			continue
		}

		res := p.Publish(ctx, pkg, opts)
		batch.Results = append(batch.Results, res)
		if !res.Success {
			logger.Warn("package publish failed", "registry", p.Name(), "package", pkg.Name, "version", pkg.Version,
				"errors", errors.Join(res.Errors))
			batch.Success = false
			batch.Errors = append(batch.Errors, res.Errors...)
			stopped = true
			continue
		}
		if res.URL != "" {
			batch.URLs = append(batch.URLs, res.URL)
		}
		logger.Info("package published", "registry", p.Name(), "package", pkg.Name, "version", pkg.Version, "dry_run", res.DryRun)
	}
	return batch
}

func failure(pkg Package, err *errors.Error) Result {
	return Result{Name: pkg.Name, Version: pkg.Version, Errors: []*errors.Error{err}}
}

func versionExists(registry, name, version string) *errors.Error {
	return errors.Newf(errors.CodePackageVersionExists,
		"%s@%s already exists in registry %s", name, version, registry).
		WithSuggestion("Bump the version; published versions cannot be overwritten")
}
