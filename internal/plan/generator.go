// Package plan turns an analysis into the immutable ReleasePlan a run
// executes.
package plan

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/releasekit/internal/analysis"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/manifest"
	"github.com/felixgeelhaar/releasekit/internal/semver"
)

// BuildOptions contains options for plan building
type BuildOptions struct {
	// Dir is the working tree. Relative manifest paths resolve against it.
	Dir string
	// Manifests lists the package manifests to bump. The first one is the
	// root manifest; defaults to package.json.
	Manifests []string
	// Now is injectable for tests.
	Now func() time.Time
}

// Build creates a ReleasePlan from an analysis result.
func Build(res *analysis.Result, opts BuildOptions) (*ReleasePlan, error) {
	if res == nil {
		return nil, errors.New(errors.CodePlanningFailed, "no analysis result to plan from")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	manifests := opts.Manifests
	if len(manifests) == 0 {
		manifests = []string{"package.json"}
	}

	rec := res.VersionRecommendation

	from := rec.CurrentVersion
	if from == "" {
		v, err := manifest.ReadVersion(resolve(opts.Dir, manifests[0]))
		if err != nil {
			return nil, errors.Wrap(errors.CodePlanningFailed, "analysis has no current version and the root manifest has none", err)
		}
		from = v
	}
	// A "none" recommendation still releases, as a patch.
	bump := rec.BumpType
	if bump == "" || bump == semver.BumpNone {
		bump = semver.BumpPatch
	}

	to := semver.Canonical(rec.RecommendedVersion)
	if to == "" {
		next, err := semver.Increment(from, bump)
		if err != nil {
			return nil, errors.Wrap(errors.CodePlanningFailed, "cannot derive the next version", err)
		}
		to = next
	}

	now := opts.Now().UTC()
	p := &ReleasePlan{
		ID: uuid.NewString(),
		Version: VersionBump{
			From:      semver.Canonical(from),
			To:        to,
			Type:      bump,
			Rationale: rec.Rationale,
		},
		ReleaseNotes: ReleaseNotes{
			Content: res.ReleaseNotes,
			Date:    now.Format("2006-01-02"),
			Summary: rec.Rationale,
		},
		CreatedAt: now,
	}

	for i, rel := range manifests {
		path := resolve(opts.Dir, rel)
		update := PackageVersionUpdate{
			Name:            filepath.Base(filepath.Dir(path)),
			Path:            path,
			FromVersion:     p.Version.From,
			ToVersion:       to,
			Type:            bump,
			NeedsPublishing: true,
			Priority:        i + 1,
		}
		// Missing or unreadable manifests are left for validation to report.
		if info, err := manifest.Inspect(path); err == nil {
			if info.Name != "" {
				update.Name = info.Name
			}
			if info.Version != "" {
				update.FromVersion = semver.Canonical(info.Version)
			}
			update.NeedsPublishing = !info.Private
		}
		p.Packages = append(p.Packages, update)
	}

	return p, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Describe renders a one-line summary of the plan for logs.
func (p *ReleasePlan) Describe() string {
	return fmt.Sprintf("%s -> %s (%s, %d package(s))", p.Version.From, p.Version.To, p.Version.Type, len(p.Packages))
}
