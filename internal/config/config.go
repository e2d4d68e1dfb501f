// Package config loads .releasekit.yaml.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/hooks"
	"github.com/felixgeelhaar/releasekit/internal/telemetry"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".releasekit.yaml"

// Config is the complete releasekit configuration
type Config struct {
	Release   ReleaseConfig    `yaml:"release"`
	GitHub    GitHubConfig     `yaml:"github"`
	NPM       NPMConfig        `yaml:"npm"`
	OCI       OCIConfig        `yaml:"oci"`
	State     StateConfig      `yaml:"state"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Hooks     []hooks.Config   `yaml:"hooks" validate:"dive"`
}

// ReleaseConfig describes the working tree and the release commit
type ReleaseConfig struct {
	Dir              string   `yaml:"dir"`
	Manifests        []string `yaml:"manifests" validate:"required,min=1,dive,required"`
	Changelog        string   `yaml:"changelog" validate:"required"`
	Remote           string   `yaml:"remote" validate:"required"`
	Branch           string   `yaml:"branch,omitempty"`
	CommitMessage    string   `yaml:"commit_message" validate:"required"`
	DryRun           bool     `yaml:"dry_run"`
	SkipConfirmation bool     `yaml:"skip_confirmation"`
	CheckReadiness   bool     `yaml:"check_readiness"`
}

// GitHubConfig configures the host release publisher. Publishing is
// enabled when Owner and Repo are set.
type GitHubConfig struct {
	Owner       string        `yaml:"owner,omitempty" validate:"required_with=Repo"`
	Repo        string        `yaml:"repo,omitempty" validate:"required_with=Owner"`
	TokenEnv    string        `yaml:"token_env"`
	BaseURL     string        `yaml:"base_url,omitempty" validate:"omitempty,url"`
	UploadURL   string        `yaml:"upload_url,omitempty" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=1,lte=16"`
	Artifacts   []string      `yaml:"artifacts,omitempty"`
	Draft       bool          `yaml:"draft"`

	// Token is resolved from TokenEnv at load time and never written.
	Token string `yaml:"-"`
}

// Enabled reports whether a host release is configured.
func (g GitHubConfig) Enabled() bool {
	return g.Owner != "" && g.Repo != ""
}

// NPMConfig configures the npm registry publisher
type NPMConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Registry string        `yaml:"registry,omitempty" validate:"omitempty,url"`
	Access   string        `yaml:"access,omitempty" validate:"omitempty,oneof=public restricted"`
	TokenEnv string        `yaml:"token_env"`
	OTP      string        `yaml:"otp,omitempty"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`

	Token string `yaml:"-"`
}

// OCIConfig configures the OCI artifact publisher. Publishing is enabled
// when Repository is set.
type OCIConfig struct {
	Repository string `yaml:"repository,omitempty"`
	Insecure   bool   `yaml:"insecure"`
}

// Enabled reports whether OCI publishing is configured.
func (o OCIConfig) Enabled() bool {
	return o.Repository != ""
}

// StateConfig configures run checkpoints
type StateConfig struct {
	Dir       string        `yaml:"dir" validate:"required"`
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Release: ReleaseConfig{
			Dir:           ".",
			Manifests:     []string{"package.json"},
			Changelog:     "CHANGELOG.md",
			Remote:        "origin",
			CommitMessage: "chore(release): {tag}",
		},
		GitHub: GitHubConfig{
			TokenEnv:    "GITHUB_TOKEN",
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
		NPM: NPMConfig{
			TokenEnv: "NPM_TOKEN",
			Timeout:  2 * time.Minute,
		},
		State: StateConfig{
			Dir:       filepath.Join(".releasekit", "runs"),
			Retention: 30 * 24 * time.Hour,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

var validate = validator.New()

// Load reads path over the defaults. An empty path tries DefaultFile in
// the current directory and falls back to the defaults when it is absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, fmt.Sprintf("failed to parse %s", path), err).
				WithSuggestion("Check the YAML syntax of the config file")
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only
	default:
		return nil, errors.Wrap(errors.CodeConfigUnreadable, fmt.Sprintf("failed to read %s", path), err)
	}

	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveSecrets() {
	if c.GitHub.TokenEnv != "" {
		c.GitHub.Token = os.Getenv(c.GitHub.TokenEnv)
	}
	if c.NPM.TokenEnv != "" {
		c.NPM.Token = os.Getenv(c.NPM.TokenEnv)
	}
}

// Validate checks the struct tags and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Wrap(errors.CodeConfigInvalid, "invalid configuration", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return errors.New(errors.CodeConfigInvalid, "invalid configuration: "+strings.Join(msgs, "; "))
}

// Path resolves rel against the release directory.
func (c *Config) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Release.Dir, rel)
}
