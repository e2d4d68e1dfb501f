package validate

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/semver"
)

func testPlan(t *testing.T, from, to string, bump semver.Bump) *plan.ReleasePlan {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"`+from+`"}`), 0o644))
	return &plan.ReleasePlan{
		ID:           "plan-1",
		Version:      plan.VersionBump{From: from, To: to, Type: bump},
		Packages:     []plan.PackageVersionUpdate{{Name: "widget", Path: path, Priority: 1}},
		ReleaseNotes: plan.ReleaseNotes{Content: "- fix"},
	}
}

func osLookGit() (string, error) { return osexec.LookPath("git") }

func codes(fs []Finding) []errors.Code {
	out := make([]errors.Code, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Code)
	}
	return out
}

func TestValidateBoundaries(t *testing.T) {
	tests := []struct {
		from, to string
		bump     semver.Bump
		valid    bool
	}{
		{"1.0.0", "1.0.0", semver.BumpPatch, false},
		{"1.0.0", "0.9.9", semver.BumpPatch, false},
		{"1.0.0", "1.0.1", semver.BumpPatch, true},
		{"1.0.0", "2.0.0-rc.1", semver.BumpMajor, true},
		{"2.0.0-rc.1", "2.0.0", semver.BumpNone, true},
	}
	v := New(nil)
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			res := v.Validate(testPlan(t, tt.from, tt.to, tt.bump))
			assert.Equal(t, tt.valid, res.Valid, "errors: %v", res.Errors)
		})
	}
}

func TestValidateNotGreater(t *testing.T) {
	res := New(nil).Validate(testPlan(t, "1.0.0", "1.0.0", semver.BumpPatch))
	assert.Equal(t, []errors.Code{errors.CodeVersionNotGreater}, codes(res.Errors))
}

func TestValidateInvalidFormat(t *testing.T) {
	res := New(nil).Validate(testPlan(t, "1.0", "1.0.1", semver.BumpPatch))
	assert.False(t, res.Valid)
	assert.Contains(t, codes(res.Errors), errors.CodeInvalidVersion)
}

func TestValidateWarnings(t *testing.T) {
	p := testPlan(t, "1.0.0", "1.1.0", semver.BumpPatch)
	p.ReleaseNotes.Content = "  \n"

	res := New(nil).Validate(p)
	assert.True(t, res.Valid)
	assert.Equal(t, []errors.Code{errors.CodeBumpMismatch, errors.CodeMissingNotes}, codes(res.Warnings))
}

func TestValidateMissingPackage(t *testing.T) {
	p := testPlan(t, "1.0.0", "1.0.1", semver.BumpPatch)
	p.Packages = append(p.Packages, plan.PackageVersionUpdate{Name: "gone", Path: "/nonexistent/package.json", Priority: 2})

	res := New(nil).Validate(p)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errors.CodePackageMissing, res.Errors[0].Code)
	assert.Equal(t, RulePackageExistence, res.Errors[0].Rule)
	assert.Contains(t, res.Errors[0].Message, "/nonexistent/package.json")
}

func TestValidatePanickingRule(t *testing.T) {
	v := New(nil)
	v.AddRule(Rule{Name: "explodes", Check: func(*plan.ReleasePlan) (bool, string) { panic("kaboom") }})
	v.AddRule(Rule{Name: "after", Severity: errors.SeverityWarning, Check: func(*plan.ReleasePlan) (bool, string) {
		return false, "still ran"
	}})

	res := v.Validate(testPlan(t, "1.0.0", "1.0.1", semver.BumpPatch))
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errors.CodeRulePanic, res.Errors[0].Code)
	assert.Equal(t, "explodes", res.Errors[0].Rule)
	assert.Contains(t, res.Errors[0].Message, "kaboom")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "still ran", res.Warnings[0].Message)
	assert.Equal(t, errors.CodeValidationFailed, res.Warnings[0].Code)
}

func TestRulesOrder(t *testing.T) {
	assert.Equal(t, []string{
		RuleVersionFormat, RuleVersionProgression, RuleBumpTypeConsistency, RuleReleaseNotes, RulePackageExistence,
	}, New(nil).Rules())
}

func TestEntries(t *testing.T) {
	res := Result{
		Errors:   []Finding{{Code: errors.CodeInvalidVersion, Message: "bad", Severity: errors.SeverityError}},
		Warnings: []Finding{{Code: errors.CodeMissingNotes, Message: "empty", Severity: errors.SeverityWarning}},
	}
	entries := res.Entries("validation")
	require.Len(t, entries, 2)
	assert.Equal(t, "validation", entries[0].Stage)
	assert.True(t, entries[1].IsWarning())
}

func TestCheckReadiness(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644))

	fake := exec.NewFakeRunner().
		On("git --version", exec.Response{Output: "git version 2.43.0"}).
		On("git rev-parse", exec.Response{Output: ".git"}).
		On("git status", exec.Response{Output: " M package.json"})

	res := CheckReadiness(context.Background(), ReadinessOptions{Dir: dir, Runner: fake})
	if _, err := osLookGit(); err != nil {
		// the binary check uses the real PATH
		assert.Contains(t, codes(res.Errors), errors.CodeGitUnavailable)
		return
	}
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Equal(t, []errors.Code{errors.CodeDirtyWorkingTree}, codes(res.Warnings))
}

func TestCheckReadinessNotRepository(t *testing.T) {
	fake := exec.NewFakeRunner().
		On("git --version", exec.Response{Output: "git version 2.43.0"}).
		On("git rev-parse", exec.Response{Err: &exec.ExitError{ExitCode: 128, Stderr: "fatal: not a git repository", Err: os.ErrNotExist}})

	res := CheckReadiness(context.Background(), ReadinessOptions{Dir: t.TempDir(), Runner: fake})
	assert.False(t, res.Valid)
	assert.Contains(t, codes(res.Errors), errors.CodeNotGitRepo)
	assert.Contains(t, codes(res.Errors), errors.CodePackageMissing)
}
