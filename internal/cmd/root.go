// Package cmd implements the releasekit command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/releasekit/internal/config"
	"github.com/felixgeelhaar/releasekit/internal/log"
)

// Output formats for --format.
const (
	formatText = "text"
	formatJSON = "json"
)

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	outputFormat string
	workDir      string

	// loaded in PersistentPreRunE
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "releasekit",
	Short: "Release orchestration with rollback",
	Long: `releasekit turns a change analysis into a release: it bumps package
manifests, updates the changelog, commits, tags and pushes, then publishes a
host release and registry packages.

Every local change is recorded while the run progresses. When a stage that
must succeed fails, those changes are rolled back so the working tree ends up
where it started.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatText, "output format: text or json")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "", "working tree (overrides release.dir)")
}

func setup(cmd *cobra.Command, _ []string) error {
	if outputFormat != formatText && outputFormat != formatJSON {
		return fmt.Errorf("unknown output format %q (want text or json)", outputFormat)
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(logLevel)
	logCfg.Format = log.ParseFormat(logFormat)
	logCfg.Output = cmd.ErrOrStderr()
	logger = log.New(logCfg)
	log.SetDefault(logger)

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if workDir != "" {
		loaded.Release.Dir = workDir
	}
	cfg = loaded
	logger.Debug("configuration loaded", "file", cfgFile, "dir", cfg.Release.Dir)
	return nil
}
