package commands

import (
	"github.com/spf13/cobra"

	"github.com/proxcluster/cpc/cmd/cpc/handlers"
)

// Bootstrap returns the command for the full cluster bootstrap workflow.
//
// The workflow provisions the workspace's VMs, installs node components,
// initializes the control plane, installs the network plugin, joins the
// workers, and runs a best-effort smoke test. Every step probes whether
// its work is already done, so re-running after a partial failure is the
// recovery path.
//
// Optional flags:
//
//	--force: re-run control-plane initialization even when a control
//	         plane already answers
func Bootstrap() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap the active workspace's cluster end to end",
		Long: `Bootstrap walks the active workspace from bare infrastructure to a
validated Kubernetes cluster:

1. Provision VMs through the infrastructure workspace
2. Install container runtime and Kubernetes packages on every node
3. Initialize the control plane
4. Install the network plugin
5. Join worker nodes and approve their serving certificates
6. Validate scheduling with a transient smoke workload

Each step is idempotent; a failed run is recovered by running bootstrap
again. When a control plane already answers, initialization is skipped
unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Bootstrap(cmd.Context(), handlers.BootstrapOptions{Force: force})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-initialize the control plane even if one already answers")

	return cmd
}
