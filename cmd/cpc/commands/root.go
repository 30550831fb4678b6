// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated to
// handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the cpc CLI.
//
// The root command serves as the entry point and parent for all
// subcommands. It provides basic CLI metadata and organizes the command
// hierarchy.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpc",
		Short: "Provision and operate Kubernetes clusters on local VM infrastructure",
	}

	// Cluster lifecycle
	cmd.AddCommand(Bootstrap())
	cmd.AddCommand(AddNode())
	cmd.AddCommand(RemoveNode())
	cmd.AddCommand(UpgradeAddons())

	// Inspection and access
	cmd.AddCommand(Status())
	cmd.AddCommand(GetCredentials())

	// Workspace management
	cmd.AddCommand(Ctx())
	cmd.AddCommand(Version())

	return cmd
}
