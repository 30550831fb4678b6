package commands

import (
	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// Status returns the command for reporting cluster health.
//
// The default mode runs every check live: VM inventory, SSH reachability,
// node registration, and addon readiness, with per-check failure
// isolation. --quick serves cached counts instead, suitable for frequent
// polling.
func Status() *cobra.Command {
	var quick bool
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report cluster health for the active workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), handlers.StatusOptions{
				Quick:      quick,
				ClearCache: clearCache,
			})
		},
	}

	cmd.Flags().BoolVar(&quick, "quick", false, "Serve cached counts instead of running every check live")
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Remove the workspace's status cache files and exit")

	return cmd
}
