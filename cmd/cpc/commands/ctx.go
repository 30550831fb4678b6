package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// Ctx returns the workspace context command group.
//
// Without arguments it lists the known workspaces and marks the active
// one. With a name it switches the active workspace, creating it (and its
// provisioner state partition) when missing.
func Ctx() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctx [name]",
		Short: "Show or switch the active workspace context",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return handlers.ShowContext(cmd.Context())
			}
			return handlers.SwitchContext(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(ctxClone())
	cmd.AddCommand(ctxDelete())

	return cmd
}

// ctxClone copies a workspace's configuration (not its roster history) to
// a fresh name.
func ctxClone() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "clone <source> <dest>",
		Short: "Clone a workspace's configuration to a new context",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.CloneContext(cmd.Context(), handlers.CloneContextOptions{
				Source: args[0],
				Dest:   args[1],
				Tag:    tag,
			})
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Tag recorded on the clone for traceability")

	return cmd
}

// ctxDelete destroys a workspace: its infrastructure, its persisted
// configuration, and its provisioner state partition, in that order.
func ctxDelete() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Destroy a workspace and everything it provisioned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(fmt.Sprintf("Destroy context %s and all of its infrastructure?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("aborted")
					return nil
				}
			}
			return handlers.DeleteContext(cmd.Context(), args[0])
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")

	return cmd
}
