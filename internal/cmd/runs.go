package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/releasekit/internal/checkpoint"
	"github.com/felixgeelhaar/releasekit/internal/pipeline"
)

var runsPruneOlderThan time.Duration

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted release runs",
	Long: `Inspect persisted release runs.

Every run writes a checkpoint to state.dir as it progresses. Checkpoints are
used by resume and kept for inspection.

Examples:
  releasekit runs list
  releasekit runs show <run-id>
  releasekit runs prune --older-than 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := checkpoints(cfg).List()
		if err != nil {
			return err
		}
		if outputFormat == formatJSON {
			if states == nil {
				states = []*checkpoint.State{}
			}
			return printJSON(cmd.OutOrStdout(), states)
		}
		writeRunList(cmd.OutOrStdout(), states)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := checkpoints(cfg).Load(args[0])
		if err != nil {
			return err
		}
		if outputFormat == formatJSON {
			return printJSON(cmd.OutOrStdout(), state)
		}
		writeRun(cmd.OutOrStdout(), state)
		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete checkpoints of finished runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		age := runsPruneOlderThan
		if age == 0 {
			age = cfg.State.Retention
		}
		removed, err := checkpoints(cfg).Cleanup(time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
		return nil
	},
}

func init() {
	runsPruneCmd.Flags().DurationVar(&runsPruneOlderThan, "older-than", 0, "minimum age (default state.retention)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}

func writeRunList(w io.Writer, states []*checkpoint.State) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tVERSION\tSTATUS\tLAST STAGE\tSTARTED")
	for _, s := range states {
		v, _ := s.GetMetadata("version")
		if v == "" {
			v = "-"
		}
		last := s.LastCompleted()
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.RunID, v, s.Status, last, s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func writeRun(w io.Writer, s *checkpoint.State) {
	fmt.Fprintf(w, "Run:      %s\n", s.RunID)
	fmt.Fprintf(w, "Status:   %s\n", s.Status)
	if v, ok := s.GetMetadata("version"); ok {
		fmt.Fprintf(w, "Version:  %s\n", v)
	}
	if tag, ok := s.GetMetadata("tag"); ok {
		fmt.Fprintf(w, "Tag:      %s\n", tag)
	}
	if dir, ok := s.GetMetadata("dir"); ok {
		fmt.Fprintf(w, "Dir:      %s\n", dir)
	}
	fmt.Fprintf(w, "Started:  %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", s.UpdatedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tATTEMPTS\tERROR")
	for _, stage := range pipeline.Stages {
		st, ok := s.Stages[string(stage)]
		if !ok {
			continue
		}
		errMsg := strings.SplitN(st.Error, "\n", 2)[0]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", stage, st.Status, st.Attempts, errMsg)
	}
	tw.Flush()

	if _, err := pipeline.ResumePoint(s); err == nil && s.Status != checkpoint.StatusCancelled {
		fmt.Fprintf(w, "\nResume with: releasekit resume %s\n", s.RunID)
	}
}
