package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/pipeline"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/rollback"
	"github.com/felixgeelhaar/releasekit/internal/semver"
	"github.com/felixgeelhaar/releasekit/internal/validate"
)

func samplePlan() *plan.ReleasePlan {
	return &plan.ReleasePlan{
		Version: plan.VersionBump{From: "1.0.0", To: "1.1.0", Type: semver.BumpMinor, Rationale: "new features"},
		Packages: []plan.PackageVersionUpdate{
			{Name: "widget", FromVersion: "1.0.0", ToVersion: "1.1.0", NeedsPublishing: true},
			{Name: "internal-tools", FromVersion: "1.0.0", ToVersion: "1.1.0"},
		},
		ReleaseNotes: plan.ReleaseNotes{Content: "- widgets spin"},
	}
}

func TestRenderPlan(t *testing.T) {
	out := RenderPlan(samplePlan(), PlainStyles())

	assert.Contains(t, out, "1.0.0 → 1.1.0")
	assert.Contains(t, out, "(minor)")
	assert.Contains(t, out, "v1.1.0")
	assert.Contains(t, out, "Reason:   new features")
	assert.Contains(t, out, "widget 1.0.0 → 1.1.0\n")
	assert.Contains(t, out, "internal-tools 1.0.0 → 1.1.0 (private)")
	assert.Contains(t, out, "- widgets spin")
}

func TestRenderValidation(t *testing.T) {
	out := RenderValidation(validate.Result{
		Valid:    false,
		Errors:   []validate.Finding{{Code: errors.CodeVersionNotGreater, Message: "1.0.0 is not greater than 1.0.0"}},
		Warnings: []validate.Finding{{Code: errors.CodeMissingNotes, Message: "release notes are empty"}},
	}, PlainStyles())

	assert.Contains(t, out, "Plan is invalid")
	errIdx := strings.Index(out, "VERSION_NOT_GREATER")
	warnIdx := strings.Index(out, "RELEASE_NOTES_MISSING")
	assert.True(t, errIdx >= 0 && warnIdx > errIdx, "errors are listed before warnings")
}

func TestRenderResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out := RenderResult(&pipeline.ReleaseResult{
			RunID:          "run-1",
			Success:        true,
			Version:        "1.1.0",
			FinalState:     pipeline.StateCompleted,
			HostReleaseURL: "https://github.com/acme/widget/releases/tag/v1.1.0",
			Stages: []pipeline.StageResult{
				{Stage: pipeline.StageAnalysis, Outcome: pipeline.OutcomeSuccess},
				{Stage: pipeline.StagePush, Outcome: pipeline.OutcomeSkipped},
			},
			Errors: []errors.ReleaseError{},
		}, PlainStyles())

		assert.Contains(t, out, "Released 1.1.0")
		assert.Contains(t, out, "✓ analysis")
		assert.Contains(t, out, "- push")
		assert.Contains(t, out, "Release: https://github.com/acme/widget/releases/tag/v1.1.0")
		assert.NotContains(t, out, "Rolled back")
	})

	t.Run("failure with rollback", func(t *testing.T) {
		out := RenderResult(&pipeline.ReleaseResult{
			RunID:      "run-2",
			FinalState: pipeline.StateFailed,
			Stages: []pipeline.StageResult{
				{Stage: pipeline.StagePush, Outcome: pipeline.OutcomeFailure, Error: "Failed to push release"},
			},
			Errors: []errors.ReleaseError{
				{Code: errors.CodePushFailed, Message: "Failed to push release", Severity: errors.SeverityError, Stage: "push"},
			},
			Rollback: &rollback.Result{Success: true, Outcomes: []rollback.Outcome{
				{Component: rollback.ComponentManifests, Success: true, Detail: "restored package.json"},
				{Component: rollback.ComponentChangelog, Success: true, Skipped: true},
			}},
		}, PlainStyles())

		assert.Contains(t, out, "Release failed")
		assert.Contains(t, out, "✗ push")
		assert.Contains(t, out, "error [push] PUSH_FAILED: Failed to push release")
		assert.Contains(t, out, "Rolled back local changes")
		assert.Contains(t, out, "restored package.json")
		assert.Contains(t, out, "nothing to undo")
	})

	t.Run("cancelled", func(t *testing.T) {
		out := RenderResult(&pipeline.ReleaseResult{FinalState: pipeline.StateCancelled}, PlainStyles())
		assert.Contains(t, out, "Release cancelled")
	})
}
