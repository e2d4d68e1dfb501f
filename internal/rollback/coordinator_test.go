package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/changelog"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/gitops"
	"github.com/felixgeelhaar/releasekit/internal/manifest"
	"github.com/felixgeelhaar/releasekit/internal/undo"
)

type recordingGit struct {
	calls  *[]string
	result gitops.RollbackResult
}

func (g recordingGit) Rollback(context.Context) gitops.RollbackResult {
	*g.calls = append(*g.calls, ComponentGit)
	return g.result
}

type recordingManifests struct {
	calls  *[]string
	result manifest.RollbackResult
}

func (m recordingManifests) Rollback() manifest.RollbackResult {
	*m.calls = append(*m.calls, ComponentManifests)
	return m.result
}

type recordingChangelog struct {
	calls  *[]string
	result changelog.Result
}

func (c recordingChangelog) Rollback() changelog.Result {
	*c.calls = append(*c.calls, ComponentChangelog)
	return c.result
}

func TestRollbackOrder(t *testing.T) {
	var calls []string
	c := NewCoordinator(
		recordingManifests{calls: &calls, result: manifest.RollbackResult{Success: true, Restored: []string{"package.json"}}},
		recordingChangelog{calls: &calls, result: changelog.Result{Success: true, Path: "CHANGELOG.md"}},
		recordingGit{calls: &calls, result: gitops.RollbackResult{Success: true, ResetTo: "abc123", DeletedTags: []string{"v1.1.0"}}},
		nil,
	)

	res := c.Rollback(context.Background())
	require.True(t, res.Success)
	assert.Equal(t, []string{ComponentManifests, ComponentChangelog, ComponentGit}, calls)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "restored package.json", res.Outcomes[0].Detail)
	assert.Equal(t, "reset to abc123; deleted tags v1.1.0", res.Outcomes[2].Detail)
}

func TestRollbackNothingCapturedIsSkipped(t *testing.T) {
	var calls []string
	noState := []*errors.Error{errors.New(errors.CodeNoRollbackState, "nothing")}
	c := NewCoordinator(
		recordingManifests{calls: &calls, result: manifest.RollbackResult{Errors: noState}},
		nil,
		recordingGit{calls: &calls, result: gitops.RollbackResult{Errors: noState}},
		nil,
	)

	res := c.Rollback(context.Background())
	assert.True(t, res.Success)
	for _, o := range res.Outcomes {
		assert.True(t, o.Skipped, o.Component)
		assert.Empty(t, o.Errors)
	}
	assert.Empty(t, res.Errors())
}

func TestRollbackContinuesAfterComponentFailure(t *testing.T) {
	var calls []string
	c := NewCoordinator(
		recordingManifests{calls: &calls, result: manifest.RollbackResult{
			Errors: []*errors.Error{errors.New(errors.CodeUnexpectedError, "disk full")},
		}},
		nil,
		recordingGit{calls: &calls, result: gitops.RollbackResult{Success: true, ResetTo: "abc"}},
		nil,
	)

	res := c.Rollback(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, []string{ComponentManifests, ComponentGit}, calls)
	assert.False(t, res.Outcomes[0].Success)
	assert.True(t, res.Outcomes[1].Success)
	require.Len(t, res.Errors(), 1)
	assert.Equal(t, errors.CodeUnexpectedError, res.Errors()[0].Code)
}

func TestRollbackRestoresFilesFromSharedLog(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "package.json")
	log := filepath.Join(dir, "CHANGELOG.md")
	original := []byte("{\n  \"name\": \"widget\",\n  \"version\": \"1.0.0\"\n}\n")
	require.NoError(t, os.WriteFile(pkg, original, 0o644))

	u := undo.New()
	manifests := manifest.NewCoordinator(u, nil)
	writer := changelog.NewWriter(u, nil)

	require.True(t, manifests.UpdateVersion(pkg, "1.1.0").Success)
	require.True(t, writer.Update(log, changelog.Entry{Version: "1.1.0", Date: "2026-01-01", Content: "- x"}).Success)

	res := NewCoordinator(manifests, writer, nil, nil).Rollback(context.Background())
	require.True(t, res.Success, errors.Join(res.Errors()))

	got, err := os.ReadFile(pkg)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	_, err = os.Stat(log)
	assert.True(t, os.IsNotExist(err), "changelog created by the run is removed")
	assert.Zero(t, u.Len())
}
