package plan

import (
	"time"

	"github.com/felixgeelhaar/releasekit/internal/semver"
)

// ReleasePlan is everything a run will do, decided up front. It is not
// modified after validation.
type ReleasePlan struct {
	ID           string                 `json:"id"`
	Version      VersionBump            `json:"version"`
	Packages     []PackageVersionUpdate `json:"packages"`
	ReleaseNotes ReleaseNotes           `json:"release_notes"`
	CreatedAt    time.Time              `json:"created_at"`
}

// VersionBump is the project-level version change.
type VersionBump struct {
	From      string      `json:"from"`
	To        string      `json:"to"`
	Type      semver.Bump `json:"type"`
	Rationale string      `json:"rationale,omitempty"`
}

// PackageVersionUpdate is one manifest's version change.
type PackageVersionUpdate struct {
	Name            string      `json:"name"`
	Path            string      `json:"path"`
	FromVersion     string      `json:"from_version"`
	ToVersion       string      `json:"to_version"`
	Type            semver.Bump `json:"type"`
	NeedsPublishing bool        `json:"needs_publishing"`
	Priority        int         `json:"priority"` // lower publishes first
}

// ReleaseNotes is the changelog and release body for the version.
type ReleaseNotes struct {
	Content string `json:"content"`
	Date    string `json:"date"` // YYYY-MM-DD, UTC
	Summary string `json:"summary,omitempty"`
}

// ManifestPaths lists the manifest path of every package, in plan order.
func (p *ReleasePlan) ManifestPaths() []string {
	paths := make([]string, 0, len(p.Packages))
	for _, pkg := range p.Packages {
		paths = append(paths, pkg.Path)
	}
	return paths
}

// Publishable lists the packages that go to a registry.
func (p *ReleasePlan) Publishable() []PackageVersionUpdate {
	var out []PackageVersionUpdate
	for _, pkg := range p.Packages {
		if pkg.NeedsPublishing {
			out = append(out, pkg)
		}
	}
	return out
}

// TagName is the tag the release will create.
func (p *ReleasePlan) TagName() string {
	return semver.TagName(p.Version.To)
}

// IsPrerelease reports whether the target version has a prerelease part.
func (p *ReleasePlan) IsPrerelease() bool {
	v, err := semver.Parse(p.Version.To)
	return err == nil && v.Prerelease != ""
}
