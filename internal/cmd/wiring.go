package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/releasekit/internal/analysis"
	"github.com/felixgeelhaar/releasekit/internal/checkpoint"
	"github.com/felixgeelhaar/releasekit/internal/config"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/hooks"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/metrics"
	"github.com/felixgeelhaar/releasekit/internal/pipeline"
	"github.com/felixgeelhaar/releasekit/internal/publish/host"
	"github.com/felixgeelhaar/releasekit/internal/publish/registry"
	"github.com/felixgeelhaar/releasekit/internal/telemetry"
	"github.com/felixgeelhaar/releasekit/internal/tui"
	"github.com/felixgeelhaar/releasekit/internal/version"
)

// analysisSource picks where the analysis comes from. A file wins over a
// command.
func analysisSource(file, command, dir string, timeout time.Duration) (analysis.Source, error) {
	switch {
	case file != "":
		return analysis.FileSource{Path: file}, nil
	case strings.TrimSpace(command) != "":
		fields := strings.Fields(command)
		return analysis.CommandSource{
			Command: exec.Command{Dir: dir, Name: fields[0], Args: fields[1:]},
			Timeout: timeout,
		}, nil
	}
	return nil, errors.New(errors.CodeAnalysisFailed, "no analysis given").
		WithSuggestions("Pass --analysis <file.json>", "Or pass --analysis-cmd \"<command>\" printing the analysis JSON")
}

func newHost(c *config.Config, l *log.Logger) (*host.Publisher, error) {
	if !c.GitHub.Enabled() {
		return nil, nil
	}
	return host.New(host.Config{
		Owner:       c.GitHub.Owner,
		Repo:        c.GitHub.Repo,
		Token:       c.GitHub.Token,
		BaseURL:     c.GitHub.BaseURL,
		UploadURL:   c.GitHub.UploadURL,
		Timeout:     c.GitHub.Timeout,
		Concurrency: c.GitHub.Concurrency,
	}, l)
}

// newRegistries returns the configured registry publishers, npm first.
func newRegistries(c *config.Config, l *log.Logger) []registry.Publisher {
	var pubs []registry.Publisher
	if c.NPM.Enabled {
		pubs = append(pubs, registry.NewNPM(exec.NewLocalRunner(c.NPM.Timeout), registry.NPMConfig{
			Registry: c.NPM.Registry,
			Access:   c.NPM.Access,
			Token:    c.NPM.Token,
		}, l))
	}
	if c.OCI.Enabled() {
		pubs = append(pubs, newOCI(c, l))
	}
	return pubs
}

func newOCI(c *config.Config, l *log.Logger) *registry.OCI {
	return registry.NewOCI(registry.OCIConfig{
		Repository: c.OCI.Repository,
		Insecure:   c.OCI.Insecure,
		UserAgent:  version.UserAgent(),
	}, l)
}

func checkpoints(c *config.Config) *checkpoint.Manager {
	return checkpoint.NewManager(c.Path(c.State.Dir))
}

// buildOrchestrator wires the pipeline from configuration. Without a
// terminal there is nobody to ask, so confirmation is skipped. review swaps
// the yes/no prompt for the package-by-package review screen. The returned
// cleanup writes the metrics textfile and flushes traces.
func buildOrchestrator(ctx context.Context, c *config.Config, l *log.Logger, src analysis.Source, opts pipeline.Options, review bool) (*pipeline.Orchestrator, func(), error) {
	tcfg := c.Telemetry
	tcfg.ServiceVersion = version.GetInfo().Version
	shutdown, err := telemetry.InitProvider(ctx, tcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	reg, m := metrics.NewRegistry()

	deps := pipeline.Deps{
		Analysis:    src,
		Runner:      exec.NewLocalRunner(0),
		Registries:  newRegistries(c, l),
		Checkpoints: checkpoints(c),
		Metrics:     m,
		Logger:      l,
	}
	if !opts.SkipConfirmation && tui.ShouldPrompt() {
		if review {
			deps.Confirmer = tui.NewReviewer()
		} else {
			deps.Confirmer = tui.NewConfirmer()
		}
	}
	deps.Hooks, err = hooks.FromConfig(c.Hooks, deps.Runner, c.Release.Dir, l)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, errors.Wrap(errors.CodeConfigInvalid, "invalid hook", err)
	}
	h, err := newHost(c, l)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	if h != nil {
		deps.Host = h
	}

	cleanup := func() {
		if c.Metrics.Textfile != "" {
			if err := metrics.WriteToTextfile(c.Path(c.Metrics.Textfile), reg); err != nil {
				l.WithError(err).Warn("failed to write metrics textfile")
			}
		}
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			l.WithError(err).Warn("failed to flush traces")
		}
	}
	return pipeline.New(opts, deps), cleanup, nil
}

// pipelineOptions maps configuration onto run options.
func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		Dir:              c.Release.Dir,
		Manifests:        c.Release.Manifests,
		Changelog:        c.Release.Changelog,
		Remote:           c.Release.Remote,
		Branch:           c.Release.Branch,
		CommitMessage:    c.Release.CommitMessage,
		DryRun:           c.Release.DryRun,
		SkipConfirmation: c.Release.SkipConfirmation,
		CheckReadiness:   c.Release.CheckReadiness,
		Artifacts:        c.GitHub.Artifacts,
		Draft:            c.GitHub.Draft,
		OTP:              c.NPM.OTP,
	}
}
