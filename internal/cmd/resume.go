package cmd

import (
	"github.com/spf13/cobra"
)

var resumeYes bool

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted or rolled back run",
	Long: `Resume a run from its checkpoint.

The persisted release plan is reused; analysis and planning are not run
again. The run continues after the last stage that finished, and stages
whose changes were rolled back run again.

Examples:
  releasekit runs list
  releasekit resume 0f8c2d7e-3b1a-4c55-9f0e-5d2b8a6c1e44`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVarP(&resumeYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	opts := pipelineOptions(cfg)
	opts.SkipConfirmation = opts.SkipConfirmation || resumeYes

	o, cleanup, err := buildOrchestrator(cmd.Context(), cfg, logger, nil, opts, false)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := o.Resume(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return res.Err()
}
