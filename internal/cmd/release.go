package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/releasekit/internal/pipeline"
	"github.com/felixgeelhaar/releasekit/internal/tui"
)

var (
	releaseAnalysis        string
	releaseAnalysisCmd     string
	releaseAnalysisTimeout time.Duration
	releaseDryRun          bool
	releaseYes             bool
	releaseDraft           bool
	releaseOTP             string
	releaseReview          bool
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Run a release from a change analysis",
	Long: `Run a release from a change analysis.

The analysis is a JSON document with the current and recommended version,
the bump type and the release notes. It is read from a file (--analysis) or
from the stdout of a command (--analysis-cmd).

Stages run in order: analysis, planning, validation, confirmation,
package-update, changelog-update, git-commit-and-tag, push, host-publish,
registry-publish. A failure in validation, package-update,
git-commit-and-tag or push rolls local changes back. Publishing failures are
reported as warnings.

A dry run still commits and tags locally but pushes and publishes nothing.

Examples:
  releasekit release --analysis analysis.json
  releasekit release --analysis-cmd "release-analyzer --json" --yes
  releasekit release --analysis analysis.json --dry-run --format json
  releasekit release --analysis analysis.json --review`,
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseAnalysis, "analysis", "", "analysis JSON file")
	releaseCmd.Flags().StringVar(&releaseAnalysisCmd, "analysis-cmd", "", "command printing the analysis JSON")
	releaseCmd.Flags().DurationVar(&releaseAnalysisTimeout, "analysis-timeout", 2*time.Minute, "timeout for --analysis-cmd")
	releaseCmd.Flags().BoolVar(&releaseDryRun, "dry-run", false, "commit and tag locally, push and publish nothing")
	releaseCmd.Flags().BoolVarP(&releaseYes, "yes", "y", false, "skip the confirmation prompt")
	releaseCmd.Flags().BoolVar(&releaseDraft, "draft", false, "create the host release as a draft")
	releaseCmd.Flags().StringVar(&releaseOTP, "otp", "", "one-time password for registry publishing")
	releaseCmd.Flags().BoolVar(&releaseReview, "review", false, "browse the plan package by package before confirming")
	releaseCmd.MarkFlagsMutuallyExclusive("analysis", "analysis-cmd")

	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, _ []string) error {
	src, err := analysisSource(releaseAnalysis, releaseAnalysisCmd, cfg.Release.Dir, releaseAnalysisTimeout)
	if err != nil {
		return err
	}

	opts := pipelineOptions(cfg)
	opts.DryRun = opts.DryRun || releaseDryRun
	opts.SkipConfirmation = opts.SkipConfirmation || releaseYes
	opts.Draft = opts.Draft || releaseDraft
	if releaseOTP != "" {
		opts.OTP = releaseOTP
	}

	o, cleanup, err := buildOrchestrator(cmd.Context(), cfg, logger, src, opts, releaseReview)
	if err != nil {
		return err
	}
	defer cleanup()

	res := o.Run(cmd.Context())
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return res.Err()
}

// printResult writes the result in the selected output format.
func printResult(w io.Writer, res *pipeline.ReleaseResult) error {
	if outputFormat == formatJSON {
		return printJSON(w, res)
	}
	fmt.Fprintln(w, tui.RenderResult(res, styles()))
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// styles colours output only for an interactive terminal outside CI.
func styles() tui.Styles {
	if tui.ShouldPrompt() {
		return tui.DefaultStyles()
	}
	return tui.PlainStyles()
}
