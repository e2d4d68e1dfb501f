package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/analysis"
	"github.com/felixgeelhaar/releasekit/internal/checkpoint"
	"github.com/felixgeelhaar/releasekit/internal/config"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/pipeline"
	"github.com/felixgeelhaar/releasekit/internal/version"
)

// resetFlags restores every flag to its default so commands can be
// executed more than once per process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "releasekit "))

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.GoVersion)
}

func TestUnknownOutputFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "runs", "list", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestInvalidConfigIsUsageError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(config.DefaultFile, []byte("npm:\n  access: everyone\n"), 0o644))

	_, err := execute(t, "runs", "list")
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
}

func TestAnalysisSource(t *testing.T) {
	src, err := analysisSource("analysis.json", "ignored", "/work", 0)
	require.NoError(t, err)
	assert.Equal(t, analysis.FileSource{Path: "analysis.json"}, src)

	src, err = analysisSource("", "release-analyzer --json --since v1.0.0", "/work", time.Minute)
	require.NoError(t, err)
	cs, ok := src.(analysis.CommandSource)
	require.True(t, ok)
	assert.Equal(t, "release-analyzer", cs.Command.Name)
	assert.Equal(t, []string{"--json", "--since", "v1.0.0"}, cs.Command.Args)
	assert.Equal(t, "/work", cs.Command.Dir)
	assert.Equal(t, time.Minute, cs.Timeout)

	_, err = analysisSource("", "   ", "/work", 0)
	assert.Equal(t, errors.CodeAnalysisFailed, errors.CodeOf(err))
}

func TestNewRegistries(t *testing.T) {
	c := config.Default()
	assert.Empty(t, newRegistries(c, nil))

	c.NPM.Enabled = true
	c.OCI.Repository = "ghcr.io/acme/packages"
	pubs := newRegistries(c, nil)
	require.Len(t, pubs, 2)
	assert.Equal(t, "npm", pubs[0].Name())
	assert.Equal(t, "oci", pubs[1].Name())
}

func TestRegistryForRollback(t *testing.T) {
	cfg = config.Default()
	t.Cleanup(func() { cfg = nil })

	pub, err := registryFor(false)
	require.NoError(t, err)
	assert.Equal(t, "npm", pub.Name(), "npm is usable for rollback even when not enabled for releases")

	_, err = registryFor(true)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))

	_, err = requireHost()
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
}

func TestReleaseReviewFlag(t *testing.T) {
	f := releaseCmd.Flags().Lookup("review")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
	assert.Contains(t, releaseCmd.Long, "--review")
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report(&buf, true, nil, "Deleted host release v1.2.0"))
	assert.Equal(t, "Deleted host release v1.2.0\n", buf.String())

	buf.Reset()
	err := report(&buf, false, []*errors.Error{errors.New(errors.CodeReleaseCreationFailed, "boom")}, "unused")
	assert.Equal(t, errors.CodeReleaseCreationFailed, errors.CodeOf(err))
	assert.Empty(t, buf.String())
}

func TestPipelineOptions(t *testing.T) {
	c := config.Default()
	c.Release.Dir = "/work"
	c.GitHub.Artifacts = []string{"dist/widget.tgz"}
	c.NPM.OTP = "123456"

	opts := pipelineOptions(c)
	assert.Equal(t, "/work", opts.Dir)
	assert.Equal(t, []string{"package.json"}, opts.Manifests)
	assert.Equal(t, "origin", opts.Remote)
	assert.Equal(t, []string{"dist/widget.tgz"}, opts.Artifacts)
	assert.Equal(t, "123456", opts.OTP)
}

func TestWriteRun(t *testing.T) {
	s := checkpoint.NewState("run-42")
	s.SetMetadata("version", "1.1.0")
	for _, stage := range []pipeline.State{pipeline.StageAnalysis, pipeline.StagePlanning, pipeline.StageValidation} {
		s.UpdateStage(string(stage), checkpoint.StageCompleted, nil)
	}
	s.UpdateStage(string(pipeline.StageConfirmation), checkpoint.StageSkipped, nil)
	s.UpdateStage(string(pipeline.StagePackageUpdate), checkpoint.StageFailed, errors.New(errors.CodePackageUpdateFailed, "bad manifest\nmore"))
	s.Status = checkpoint.StatusFailed

	var buf bytes.Buffer
	writeRun(&buf, s)
	out := buf.String()
	assert.Contains(t, out, "Run:      run-42")
	assert.Contains(t, out, "Version:  1.1.0")
	assert.Contains(t, out, "package-update")
	assert.Contains(t, out, "[PACKAGE_UPDATE_FAILED] bad manifest")
	assert.NotContains(t, out, "more")
	assert.Contains(t, out, "releasekit resume run-42")

	buf.Reset()
	writeRunList(&buf, []*checkpoint.State{s})
	assert.Contains(t, buf.String(), "run-42")
	assert.Contains(t, buf.String(), "1.1.0")

	buf.Reset()
	writeRunList(&buf, nil)
	assert.Equal(t, "No runs found.\n", buf.String())
}

func TestReleaseDryRunEndToEnd(t *testing.T) {
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	gitIn := func(args ...string) {
		t.Helper()
		c := osexec.Command("git", args...)
		c.Dir = dir
		out, err := c.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	gitIn("init", "-q")
	gitIn("symbolic-ref", "HEAD", "refs/heads/main")
	gitIn("config", "user.email", "release@example.com")
	gitIn("config", "user.name", "Release Bot")
	gitIn("config", "commit.gpgsign", "false")
	gitIn("config", "tag.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{\n  \"name\": \"widget\",\n  \"version\": \"1.0.0\"\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".releasekit/\nanalysis.json\n"), 0o644))
	gitIn("add", "-A")
	gitIn("commit", "-q", "-m", "initial")

	analysisJSON := `{
  "versionRecommendation": {"currentVersion": "1.0.0", "recommendedVersion": "1.1.0", "bumpType": "minor", "rationale": "features"},
  "releaseNotes": "### Added\n\n- spinning"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analysis.json"), []byte(analysisJSON), 0o644))
	t.Chdir(dir)

	out, err := execute(t, "release", "--analysis", "analysis.json", "--dry-run", "--yes", "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	var res pipeline.ReleaseResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "1.1.0", res.Version)
	assert.True(t, res.DryRun)
	assert.Empty(t, res.Errors)

	out, err = execute(t, "runs", "list", "--format", "json")
	require.NoError(t, err)
	var states []*checkpoint.State
	require.NoError(t, json.Unmarshal([]byte(out), &states))
	require.Len(t, states, 1)
	assert.Equal(t, res.RunID, states[0].RunID)
	assert.Equal(t, checkpoint.StatusCompleted, states[0].Status)

	_, err = execute(t, "resume", res.RunID)
	assert.Equal(t, errors.CodeRunNotResumable, errors.CodeOf(err))
}
