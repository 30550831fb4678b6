package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/proxcluster/cpc/internal/nodes"
	"github.com/proxcluster/cpc/internal/status"
	"github.com/proxcluster/cpc/internal/ui"
	"github.com/proxcluster/cpc/internal/workspace"
)

// ShowContext prints the active workspace name and every known workspace.
func ShowContext(ctx context.Context) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	active, err := store.ActiveContext()
	if err != nil {
		return err
	}

	names, err := listContexts(store)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Printf("* %s\n", active)
		return nil
	}
	seen := false
	for _, name := range names {
		marker := " "
		if name == active {
			marker = "*"
			seen = true
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	if !seen {
		fmt.Printf("* %s\n", active)
	}
	return nil
}

// SwitchContext persists the active workspace name and switches the
// provisioner's state partition to match, creating both when missing.
func SwitchContext(ctx context.Context, name string) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	if err := store.SetActiveContext(name); err != nil {
		return err
	}
	if err := newInfra(infraDir()).SelectWorkspace(ctx, name); err != nil {
		return err
	}
	ui.Successf("switched to context %s", name)
	return nil
}

// CloneContextOptions contains options for the ctx clone command.
type CloneContextOptions struct {
	Source string
	Dest   string
	// Tag is recorded on the clone for traceability.
	Tag string
}

// CloneContext copies a workspace's configuration (not its roster history)
// to a fresh name.
func CloneContext(ctx context.Context, opts CloneContextOptions) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	if err := store.Clone(opts.Source, opts.Dest, opts.Tag); err != nil {
		return err
	}
	ui.Successf("cloned %s to %s", opts.Source, opts.Dest)
	return nil
}

// DeleteContext destroys a workspace: infrastructure first, then the
// persisted configuration, then the provisioner's state partition. Later
// failures do not roll back earlier destructive steps.
func DeleteContext(ctx context.Context, name string) error {
	if err := workspace.ValidateContextName(name); err != nil {
		return err
	}

	store, err := newStore()
	if err != nil {
		return err
	}
	if !store.Exists(name) {
		return fmt.Errorf("workspace %s does not exist", name)
	}
	ws, err := store.Load(name)
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, name); err != nil {
		return err
	}
	if err := infra.DestroyAll(ctx, nodes.InfraVars(ws.Roster)); err != nil {
		return fmt.Errorf("failed to destroy infrastructure for %s: %w", name, err)
	}

	if err := store.DeleteConfig(name); err != nil {
		return fmt.Errorf("infrastructure destroyed, but %w", err)
	}
	if err := (&status.Aggregator{Context: name}).ClearCache(); err != nil {
		ui.Warnf("failed to clear status caches for %s: %v", name, err)
	}

	// The partition being deleted must not be the selected one.
	if err := infra.SelectWorkspace(ctx, workspace.DefaultContext); err != nil {
		return fmt.Errorf("infrastructure destroyed and config removed, but failed to switch partitions: %w", err)
	}
	if err := infra.DeleteWorkspace(ctx, name); err != nil {
		return fmt.Errorf("infrastructure destroyed and config removed, but failed to delete state partition: %w", err)
	}

	active, err := store.ActiveContext()
	if err == nil && active == name {
		if err := store.SetActiveContext(workspace.DefaultContext); err != nil {
			ui.Warnf("failed to reset active context: %v", err)
		}
	}

	ui.Successf("context %s deleted", name)
	return nil
}

// listContexts returns the names of every persisted workspace, sorted by
// the directory listing order.
func listContexts(store *workspace.Store) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(store.BaseDir, "envs"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	return names, nil
}
