package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/proxcluster/cpc/internal/addons"
	"github.com/proxcluster/cpc/internal/bootstrap"
	"github.com/proxcluster/cpc/internal/recovery"
	"github.com/proxcluster/cpc/internal/ui"
	"github.com/proxcluster/cpc/internal/workspace"
)

// BootstrapOptions contains options for the bootstrap command.
type BootstrapOptions struct {
	// Force re-runs control-plane initialization even when a control
	// plane already answers.
	Force bool
}

// Bootstrap provisions and initializes the active workspace's cluster.
func Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	credsPath := kubeconfigPath(store, ws.Name)
	cluster := newClusterClient(credsPath, func(ctx context.Context) error {
		_, err := fetchCredentials(ctx, infra, store, ws.Name)
		return err
	})

	// The network plugin is a raw-manifest addon, so the orchestrator
	// never needs helm credentials here.
	networking := addons.NewOrchestrator(cluster, newHelm(), nil, ws)
	networking.Warnf = ui.Warnf

	checkpoints := recovery.NewLog(checkpointPath(ws.Name))
	orchestrator := bootstrap.New(ws, infra, newConfigRunner(playbookDir()), cluster, networking, checkpoints)
	orchestrator.Force = opts.Force
	orchestrator.Warnf = ui.Warnf

	phase, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap stopped at %s: %w", phase, err)
	}

	// Mark roster entries that the run proved joined.
	if snap, qerr := infra.Query(ctx); qerr == nil {
		for _, node := range snap.Nodes {
			if spec, ok := ws.Roster.Find(node.Name); ok && spec.State == workspace.StateProvisioned {
				_ = ws.Roster.SetState(spec.Name, workspace.StateJoined)
			}
		}
		if serr := store.Save(ws); serr != nil {
			ui.Warnf("failed to persist roster state: %v", serr)
		}
	}

	ui.Successf("cluster %s bootstrapped (%s)", ws.Name, phase)
	return nil
}

// checkpointPath holds the bootstrap checkpoint log for one workspace.
func checkpointPath(contextName string) string {
	return fmt.Sprintf("%s/cpc_checkpoints_%s.log", os.TempDir(), contextName)
}
