package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/tui"
	"github.com/felixgeelhaar/releasekit/internal/validate"
)

var validateAnalysis string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the working tree is ready to release",
	Long: `Check that the working tree is ready to release: git is installed, the
directory is a repository, the tree is clean and the root manifest exists.

With --analysis the release plan built from the analysis is validated too,
exactly as the validation stage of a release would.

Examples:
  releasekit validate
  releasekit validate --analysis analysis.json --format json`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateAnalysis, "analysis", "", "also validate the plan built from this analysis")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	res := validate.CheckReadiness(cmd.Context(), validate.ReadinessOptions{
		Dir:      cfg.Release.Dir,
		Manifest: cfg.Release.Manifests[0],
	})

	var p *plan.ReleasePlan
	if validateAnalysis != "" {
		src, err := analysisSource(validateAnalysis, "", cfg.Release.Dir, 0)
		if err != nil {
			return err
		}
		a, err := src.Analyze(cmd.Context())
		if err != nil {
			return err
		}
		p, err = plan.Build(a, plan.BuildOptions{Dir: cfg.Release.Dir, Manifests: cfg.Release.Manifests})
		if err != nil {
			return err
		}
		planned := validate.New(logger).Validate(p)
		res.Errors = append(res.Errors, planned.Errors...)
		res.Warnings = append(res.Warnings, planned.Warnings...)
		res.Valid = res.Valid && planned.Valid
	}

	w := cmd.OutOrStdout()
	if outputFormat == formatJSON {
		if err := printJSON(w, struct {
			validate.Result
			Plan *plan.ReleasePlan `json:"plan,omitempty"`
		}{res, p}); err != nil {
			return err
		}
	} else {
		if p != nil {
			fmt.Fprintln(w, tui.RenderPlan(p, styles()))
		}
		fmt.Fprint(w, tui.RenderValidation(res, styles()))
	}

	if !res.Valid {
		return errors.Newf(errors.CodeValidationFailed, "%d check(s) failed", len(res.Errors))
	}
	return nil
}
