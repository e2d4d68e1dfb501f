package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/publish/host"
	"github.com/felixgeelhaar/releasekit/internal/publish/registry"
	"github.com/felixgeelhaar/releasekit/internal/semver"
)

var rollbackOCI bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo a published release",
	Long: `Undo what a release published outside the working tree.

A failed run rolls back its local changes by itself. Published host releases,
remote tags and registry packages are never removed automatically; use these
commands to remove them explicitly.

Examples:
  releasekit rollback host-release v1.2.0
  releasekit rollback host-tag v1.2.0
  releasekit rollback registry @acme/widget 1.2.0
  releasekit rollback registry @acme/widget 1.2.0 --oci`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var rollbackHostReleaseCmd = &cobra.Command{
	Use:   "host-release <tag>",
	Short: "Delete the host release for a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := requireHost()
		if err != nil {
			return err
		}
		tag := semver.TagName(args[0])
		res := h.DeleteRelease(cmd.Context(), tag)
		return report(cmd.OutOrStdout(), res.Success, res.Errors, "Deleted host release "+tag)
	},
}

var rollbackHostTagCmd = &cobra.Command{
	Use:   "host-tag <tag>",
	Short: "Delete a tag on the host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := requireHost()
		if err != nil {
			return err
		}
		tag := semver.TagName(args[0])
		res := h.DeleteTag(cmd.Context(), tag)
		return report(cmd.OutOrStdout(), res.Success, res.Errors, "Deleted remote tag "+tag)
	},
}

var rollbackRegistryCmd = &cobra.Command{
	Use:   "registry <package> <version>",
	Short: "Unpublish a package version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := registryFor(rollbackOCI)
		if err != nil {
			return err
		}
		name, ver := args[0], semver.Canonical(args[1])
		res := pub.Unpublish(cmd.Context(), name, ver)
		return report(cmd.OutOrStdout(), res.Success, res.Errors,
			fmt.Sprintf("Unpublished %s@%s from %s", name, ver, pub.Name()))
	},
}

func init() {
	rollbackRegistryCmd.Flags().BoolVar(&rollbackOCI, "oci", false, "unpublish from the OCI registry instead of npm")

	rollbackCmd.AddCommand(rollbackHostReleaseCmd)
	rollbackCmd.AddCommand(rollbackHostTagCmd)
	rollbackCmd.AddCommand(rollbackRegistryCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func requireHost() (*host.Publisher, error) {
	h, err := newHost(cfg, logger)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "no host configured").
			WithSuggestion("Set github.owner and github.repo in the config file")
	}
	return h, nil
}

// registryFor returns the npm publisher, or the OCI one when oci is set,
// even if publishing to it is disabled for releases.
func registryFor(oci bool) (registry.Publisher, error) {
	if oci {
		if !cfg.OCI.Enabled() {
			return nil, errors.New(errors.CodeConfigInvalid, "no OCI repository configured").
				WithSuggestion("Set oci.repository in the config file")
		}
		return newOCI(cfg, logger), nil
	}
	c := *cfg
	c.NPM.Enabled = true
	return newRegistries(&c, logger)[0], nil
}

func report(w io.Writer, ok bool, errs []*errors.Error, done string) error {
	if outputFormat == formatJSON {
		out := struct {
			Success bool                  `json:"success"`
			Errors  []errors.ReleaseError `json:"errors"`
		}{Success: ok, Errors: []errors.ReleaseError{}}
		for _, e := range errs {
			out.Errors = append(out.Errors, errors.Entry(e, errors.SeverityError, "rollback"))
		}
		if err := printJSON(w, out); err != nil {
			return err
		}
	} else if ok {
		fmt.Fprintln(w, done)
	}

	if !ok {
		if len(errs) == 1 {
			return errs[0]
		}
		return errors.New(errors.CodeRollbackFailed, errors.Join(errs))
	}
	return nil
}
