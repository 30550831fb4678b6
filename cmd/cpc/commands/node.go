package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// AddNode returns the command for provisioning an additional node.
//
// The node is recorded in the workspace roster and its VM is created;
// joining it to the cluster happens on the next bootstrap run.
//
// Required flags:
//
//	--role: worker or control-plane
//
// Optional flags:
//
//	--name: pin the node name instead of allocating the next free suffix
func AddNode() *cobra.Command {
	var role string
	var name string

	cmd := &cobra.Command{
		Use:   "add-node",
		Short: "Provision an additional cluster node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.AddNode(cmd.Context(), handlers.AddNodeOptions{Role: role, Name: name})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Node role: worker or control-plane")
	cmd.Flags().StringVar(&name, "name", "", "Explicit node name (default: next free <role>-<n>)")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

// RemoveNode returns the command for retiring a node.
//
// The base nodes (suffixes 1 and 2) cannot be removed through this path.
// A removed node's suffix is never reused.
func RemoveNode() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove-node <name>",
		Short: "Remove a node and destroy its VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(fmt.Sprintf("Remove node %s and destroy its VM?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("aborted")
					return nil
				}
			}
			return handlers.RemoveNode(cmd.Context(), handlers.RemoveNodeOptions{Name: args[0]})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")

	return cmd
}
