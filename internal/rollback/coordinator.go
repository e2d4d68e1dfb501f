// Package rollback undoes a failed run's local side effects in a fixed
// order: file restores first, then source control.
package rollback

import (
	"context"
	"strings"
	"time"

	"github.com/felixgeelhaar/releasekit/internal/changelog"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/gitops"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/manifest"
)

// Component names, in the order they are rolled back.
const (
	ComponentManifests = "manifests"
	ComponentChangelog = "changelog"
	ComponentGit       = "git"
)

// ManifestRestorer restores manifests from the run's undo log.
type ManifestRestorer interface {
	Rollback() manifest.RollbackResult
}

// ChangelogRestorer restores the changelog from the run's undo log.
type ChangelogRestorer interface {
	Rollback() changelog.Result
}

// GitRestorer resets commits and deletes tags the run created.
type GitRestorer interface {
	Rollback(ctx context.Context) gitops.RollbackResult
}

// Outcome reports one component's rollback. A component with nothing to
// undo is Skipped and counts as successful.
type Outcome struct {
	Component string          `json:"component"`
	Success   bool            `json:"success"`
	Skipped   bool            `json:"skipped,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Errors    []*errors.Error `json:"-"`
	Duration  time.Duration   `json:"duration_ns"`
}

// Result is the overall rollback outcome attached to a failed run.
type Result struct {
	Success  bool          `json:"success"`
	Outcomes []Outcome     `json:"outcomes"`
	Duration time.Duration `json:"duration_ns"`
}

// Errors flattens every component's errors.
func (r Result) Errors() []*errors.Error {
	var errs []*errors.Error
	for _, o := range r.Outcomes {
		errs = append(errs, o.Errors...)
	}
	return errs
}

// Coordinator sequences the component rollbacks. Any component may be nil.
type Coordinator struct {
	Manifests ManifestRestorer
	Changelog ChangelogRestorer
	Git       GitRestorer

	logger *log.Logger
}

// NewCoordinator creates a coordinator over the run's collaborators.
func NewCoordinator(m ManifestRestorer, c ChangelogRestorer, g GitRestorer, logger *log.Logger) *Coordinator {
	return &Coordinator{Manifests: m, Changelog: c, Git: g, logger: log.OrDiscard(logger)}
}

// Rollback runs every configured component, whatever the failing stage
// was. Success requires every invoked component to succeed.
func (c *Coordinator) Rollback(ctx context.Context) Result {
	start := time.Now()
	var result Result

	if c.Manifests != nil {
		result.Outcomes = append(result.Outcomes, c.run(ComponentManifests, func() ([]*errors.Error, string) {
			r := c.Manifests.Rollback()
			if len(r.Restored) > 0 {
				return r.Errors, joinPaths("restored", r.Restored)
			}
			return r.Errors, ""
		}))
	}
	if c.Changelog != nil {
		result.Outcomes = append(result.Outcomes, c.run(ComponentChangelog, func() ([]*errors.Error, string) {
			r := c.Changelog.Rollback()
			if r.Path != "" {
				return r.Errors, "restored " + r.Path
			}
			return r.Errors, ""
		}))
	}
	if c.Git != nil {
		result.Outcomes = append(result.Outcomes, c.run(ComponentGit, func() ([]*errors.Error, string) {
			r := c.Git.Rollback(ctx)
			detail := ""
			if r.ResetTo != "" {
				detail = "reset to " + r.ResetTo
			}
			if len(r.DeletedTags) > 0 {
				if detail != "" {
					detail += "; "
				}
				detail += joinPaths("deleted tags", r.DeletedTags)
			}
			return r.Errors, detail
		}))
	}

	result.Success = true
	for _, o := range result.Outcomes {
		if !o.Success {
			result.Success = false
		}
	}
	result.Duration = time.Since(start)

	if result.Success {
		c.logger.Info("rollback completed", "components", len(result.Outcomes), "duration", result.Duration)
	} else {
		c.logger.Error("rollback incomplete", "errors", errors.Join(result.Errors()))
	}
	return result
}

func (c *Coordinator) run(component string, fn func() ([]*errors.Error, string)) Outcome {
	start := time.Now()
	errs, detail := fn()
	out := Outcome{Component: component, Detail: detail, Duration: time.Since(start)}

	if len(errs) == 1 && errs[0].Code == errors.CodeNoRollbackState {
		out.Success = true
		out.Skipped = true
		c.logger.Debug("nothing to roll back", "component", component)
		return out
	}
	out.Errors = errs
	out.Success = len(errs) == 0
	return out
}

func joinPaths(label string, items []string) string {
	return label + " " + strings.Join(items, ", ")
}
