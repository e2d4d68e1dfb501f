// Package analysis loads the change analysis a release is planned from.
// The analysis itself is produced elsewhere; this package only parses and
// sanity-checks it.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/semver"
)

// Recommendation is the analysis's version recommendation.
type Recommendation struct {
	CurrentVersion     string      `json:"currentVersion"`
	RecommendedVersion string      `json:"recommendedVersion"`
	BumpType           semver.Bump `json:"bumpType"`
	Rationale          string      `json:"rationale"`
	Confidence         float64     `json:"confidence,omitempty"`
}

// Change is one detected change.
type Change struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Changes groups detected changes by kind.
type Changes struct {
	BreakingChanges []Change `json:"breakingChanges,omitempty"`
	NewFeatures     []Change `json:"newFeatures,omitempty"`
	BugFixes        []Change `json:"bugFixes,omitempty"`
	Improvements    []Change `json:"improvements,omitempty"`
}

// Total counts every change.
func (c Changes) Total() int {
	return len(c.BreakingChanges) + len(c.NewFeatures) + len(c.BugFixes) + len(c.Improvements)
}

// Result is the inbound analysis document.
type Result struct {
	VersionRecommendation Recommendation `json:"versionRecommendation"`
	ReleaseNotes          string         `json:"releaseNotes"`
	Changes               *Changes       `json:"changes,omitempty"`
}

// Parse decodes and checks an analysis document. BumpType is normalised;
// a missing one is derived from the two versions.
func Parse(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.CodeParseError, "failed to parse analysis JSON", err)
	}

	rec := &r.VersionRecommendation
	if strings.TrimSpace(rec.RecommendedVersion) == "" {
		return nil, errors.New(errors.CodeParseError, "analysis has no recommendedVersion")
	}
	if rec.BumpType == "" {
		if rec.CurrentVersion != "" {
			rec.BumpType = semver.DeriveBump(rec.CurrentVersion, rec.RecommendedVersion)
		}
	} else {
		b, err := semver.ParseBump(string(rec.BumpType))
		if err != nil {
			return nil, errors.Wrap(errors.CodeParseError, "invalid bumpType", err)
		}
		rec.BumpType = b
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return nil, errors.Newf(errors.CodeParseError, "confidence out of range: %v", rec.Confidence)
	}
	return &r, nil
}

// Warnings flags recommendations that disagree with the detected changes.
func (r *Result) Warnings() []string {
	if r.Changes == nil {
		return nil
	}
	var out []string
	bump := r.VersionRecommendation.BumpType
	if r.Changes.Total() == 0 && bump != semver.BumpNone && bump != "" {
		out = append(out, "No changes detected but version bump recommended")
	}
	if len(r.Changes.BreakingChanges) > 0 && bump != semver.BumpMajor {
		out = append(out, "Breaking changes detected but not recommending major version bump")
	}
	return out
}

// Source produces an analysis.
type Source interface {
	Analyze(ctx context.Context) (*Result, error)
}

// Static returns a fixed result.
type Static struct {
	Result *Result
}

// Analyze implements Source.
func (s Static) Analyze(context.Context) (*Result, error) {
	if s.Result == nil {
		return nil, errors.New(errors.CodeAnalysisFailed, "no analysis provided")
	}
	return s.Result, nil
}

// FileSource reads an analysis JSON file.
type FileSource struct {
	Path string
}

// Analyze implements Source.
func (f FileSource) Analyze(context.Context) (*Result, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(f.Path)
		}
		return nil, errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to read %s", f.Path), err)
	}
	return Parse(data)
}

// CommandSource runs an external analyzer and parses its stdout.
type CommandSource struct {
	Runner  exec.Runner
	Command exec.Command
	Timeout time.Duration
}

// Analyze implements Source.
func (c CommandSource) Analyze(ctx context.Context) (*Result, error) {
	runner := c.Runner
	if runner == nil {
		runner = exec.NewLocalRunner(c.Timeout)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	out, err := runner.Run(ctx, c.Command)
	if err != nil {
		return nil, errors.Wrap(errors.CodeAnalysisFailed, fmt.Sprintf("analysis command %q failed", c.Command.String()), err).
			WithSuggestion(firstLine(exec.StderrOf(err)))
	}
	return Parse([]byte(out))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "Run the analysis command by hand to see its output"
	}
	return s
}
