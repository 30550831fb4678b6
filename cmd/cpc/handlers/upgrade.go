package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/proxcluster/cpc/internal/addons"
	"github.com/proxcluster/cpc/internal/ui"
)

// UpgradeAddonsOptions contains options for the upgrade-addons command.
type UpgradeAddonsOptions struct {
	// Addon is one addon name or "all".
	Addon string
	// Version overrides the workspace pin and the built-in default.
	Version string
	// AnnotationLimit overrides the CRD annotation-size threshold.
	AnnotationLimit int
}

// UpgradeAddons converges one addon, or all of them with per-addon failure
// isolation, and prints the before/after report.
func UpgradeAddons(ctx context.Context, opts UpgradeAddonsOptions) error {
	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	credsPath := kubeconfigPath(store, ws.Name)
	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	cluster := newClusterClient(credsPath, func(ctx context.Context) error {
		_, err := fetchCredentials(ctx, infra, store, ws.Name)
		return err
	})

	kubeconfig, err := os.ReadFile(credsPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	orchestrator := addons.NewOrchestrator(cluster, newHelm(), kubeconfig, ws)
	orchestrator.AnnotationLimit = opts.AnnotationLimit
	orchestrator.Warnf = ui.Warnf

	var results []addons.Result
	if opts.Addon == "all" {
		results = orchestrator.UpgradeAll(ctx, opts.Version)
	} else {
		results = []addons.Result{orchestrator.Upgrade(ctx, opts.Addon, opts.Version)}
	}

	failed := 0
	for _, res := range results {
		switch {
		case res.Failed():
			failed++
			ui.StatusLine(res.Addon, false, fmt.Sprintf("failed: %v", res.Err))
		case res.Skipped:
			ui.StatusLine(res.Addon, true, fmt.Sprintf("already current (%s)", res.After))
		default:
			before := res.Before
			if before == "" {
				before = "not installed"
			}
			ui.StatusLine(res.Addon, true, fmt.Sprintf("%s -> %s", before, res.After))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d addons failed", failed, len(results))
	}
	return nil
}
