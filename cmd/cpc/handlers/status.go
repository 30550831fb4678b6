package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/proxcluster/cpc/internal/status"
	"github.com/proxcluster/cpc/internal/ui"
)

// StatusOptions contains options for the status command.
type StatusOptions struct {
	// Quick serves cached counts instead of running every check live.
	Quick bool
	// ClearCache removes the workspace's cache files and exits.
	ClearCache bool
}

// sshProbe adapts the per-host SSH client to the aggregator's prober.
type sshProbe struct{}

func (sshProbe) Reachable(ctx context.Context, address string, timeout time.Duration) bool {
	executor, err := newRemoteExecutor(address)
	if err != nil {
		return false
	}
	return executor.Reachable(ctx, timeout)
}

// Status reports cluster health for the active workspace.
func Status(ctx context.Context, opts StatusOptions) error {
	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	cluster := newClusterClient(kubeconfigPath(store, ws.Name), nil)
	aggregator := status.NewAggregator(ws.Name, infra, cluster, sshProbe{})

	if opts.ClearCache {
		if err := aggregator.ClearCache(); err != nil {
			return err
		}
		ui.Successf("status caches for %s cleared", ws.Name)
		return nil
	}

	if opts.Quick {
		summary, err := aggregator.Fast(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("context:    %s\n", ws.Name)
		fmt.Printf("VMs:        %d deployed\n", summary.VMs)
		fmt.Printf("SSH:        %d/%d reachable\n", summary.Reachable, summary.Probed)
		if summary.ClusterNodes >= 0 {
			fmt.Printf("cluster:    %d nodes\n", summary.ClusterNodes)
		} else {
			fmt.Printf("cluster:    unreachable\n")
		}
		return nil
	}

	checks := aggregator.Full(ctx)
	fmt.Printf("context: %s\n", ws.Name)
	for _, check := range checks {
		if check.Err != nil {
			ui.StatusLine(check.Name, false, fmt.Sprintf("check failed: %v", check.Err))
			continue
		}
		ui.StatusLine(check.Name, check.OK, check.Detail)
	}
	return nil
}
