package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/hooks"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"package.json"}, cfg.Release.Manifests)
	assert.Equal(t, "origin", cfg.Release.Remote)
	assert.False(t, cfg.GitHub.Enabled())
	assert.False(t, cfg.OCI.Enabled())
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad(t *testing.T) {
	t.Setenv("RELEASE_GH_TOKEN", "gh-secret")
	t.Setenv("NPM_TOKEN", "npm-secret")

	path := writeConfig(t, `
release:
  dir: /work/widget
  manifests: [package.json, packages/core/package.json]
  branch: main
  skip_confirmation: true
github:
  owner: acme
  repo: widget
  token_env: RELEASE_GH_TOKEN
  timeout: 45s
  artifacts: [dist/widget.tgz]
npm:
  enabled: true
  access: public
oci:
  repository: ghcr.io/acme/packages
telemetry:
  enabled: true
  endpoint: localhost:4318
  sample_rate: 0.5
metrics:
  textfile: /var/lib/node_exporter/releasekit.prom
hooks:
  - name: notify
    type: script
    command: [./scripts/notify.sh, --channel, releases]
    events: [release.completed, release.failed]
  - name: chat
    type: webhook
    url: https://hooks.example.com/releases
    events: [stage.failed]
    timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/work/widget", cfg.Release.Dir)
	assert.Len(t, cfg.Release.Manifests, 2)
	assert.Equal(t, "CHANGELOG.md", cfg.Release.Changelog, "unset keys keep their defaults")
	assert.True(t, cfg.Release.SkipConfirmation)

	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, 45*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, 4, cfg.GitHub.Concurrency)
	assert.Equal(t, "gh-secret", cfg.GitHub.Token)

	assert.True(t, cfg.NPM.Enabled)
	assert.Equal(t, "npm-secret", cfg.NPM.Token)
	assert.True(t, cfg.OCI.Enabled())

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, "/var/lib/node_exporter/releasekit.prom", cfg.Metrics.Textfile)

	require.Len(t, cfg.Hooks, 2)
	assert.Equal(t, []string{"./scripts/notify.sh", "--channel", "releases"}, cfg.Hooks[0].Command)
	assert.Equal(t, []hooks.EventType{hooks.EventStageFailed}, cfg.Hooks[1].Events)
	assert.Equal(t, 5*time.Second, cfg.Hooks[1].Timeout)

	assert.Equal(t, "/work/widget/CHANGELOG.md", cfg.Path(cfg.Release.Changelog))
	assert.Equal(t, "/abs/file", cfg.Path("/abs/file"))
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Release, cfg.Release)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.Code
	}{
		{"bad yaml", "release: [unterminated", errors.CodeConfigInvalid},
		{"owner without repo", "github:\n  owner: acme\n", errors.CodeConfigInvalid},
		{"bad access", "npm:\n  access: everyone\n", errors.CodeConfigInvalid},
		{"sample rate out of range", "telemetry:\n  sample_rate: 2\n", errors.CodeConfigInvalid},
		{"no manifests", "release:\n  manifests: []\n", errors.CodeConfigInvalid},
		{"hook without command", "hooks:\n  - name: x\n    type: script\n    events: [release.completed]\n", errors.CodeConfigInvalid},
		{"hook with unknown event", "hooks:\n  - name: x\n    type: webhook\n    url: https://example.com\n    events: [release.exploded]\n", errors.CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errors.CodeConfigUnreadable, errors.CodeOf(err))
}

func TestValidateListsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Release.Remote = ""
	cfg.GitHub.Concurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Release.Remote")
	assert.Contains(t, err.Error(), "GitHub.Concurrency")
}
