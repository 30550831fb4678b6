package commands

import (
	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// UpgradeAddons returns the command for converging cluster addons.
//
// With no argument every supported addon is converged; failures are
// isolated per addon and the run reports all of them. The target version
// is the explicit --version, then the workspace pin, then the built-in
// default.
func UpgradeAddons() *cobra.Command {
	var version string
	var annotationLimit int

	cmd := &cobra.Command{
		Use:   "upgrade-addons [addon|all]",
		Short: "Upgrade cluster addons to their target versions",
		Long: `Upgrade one addon, or all of them, to the resolved target version.

An addon already running the target version with all pods ready is
skipped. Before applying a raw-manifest addon the oversized last-applied
annotation is stripped from its CRDs so the apply does not trip the API
server's write-size limit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addon := "all"
			if len(args) == 1 {
				addon = args[0]
			}
			return handlers.UpgradeAddons(cmd.Context(), handlers.UpgradeAddonsOptions{
				Addon:           addon,
				Version:         version,
				AnnotationLimit: annotationLimit,
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Target version (default: workspace pin, then built-in default)")
	cmd.Flags().IntVar(&annotationLimit, "annotation-limit", 0, "CRD annotation size threshold in bytes (default 204800)")

	return cmd
}
