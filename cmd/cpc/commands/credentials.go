package commands

import (
	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// GetCredentials returns the command for fetching cluster credentials.
//
// The admin kubeconfig is read from the first control-plane host over SSH
// and written next to the workspace configuration.
func GetCredentials() *cobra.Command {
	return &cobra.Command{
		Use:   "get-credentials",
		Short: "Fetch the admin kubeconfig from the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.GetCredentials(cmd.Context())
		},
	}
}
