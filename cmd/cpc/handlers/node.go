package handlers

import (
	"context"
	"fmt"

	"github.com/proxcluster/cpc/internal/nodes"
	"github.com/proxcluster/cpc/internal/ui"
	"github.com/proxcluster/cpc/internal/workspace"
)

// AddNodeOptions contains options for the add-node command.
type AddNodeOptions struct {
	Role string
	// Name pins the node name instead of allocating the next suffix.
	Name string
}

// AddNode records a new node in the roster and provisions its VM. The node
// is not joined to the cluster; bootstrap (or a re-run of it) joins it.
func AddNode(ctx context.Context, opts AddNodeOptions) error {
	role := workspace.Role(opts.Role)
	if !role.Valid() {
		return &workspace.ValidationError{
			Field: "role",
			Msg:   fmt.Sprintf("unsupported role %q (worker or control-plane)", opts.Role),
		}
	}

	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	manager := nodes.NewManager(ws, store, infra)
	manager.Warnf = ui.Warnf

	spec, err := manager.Add(ctx, role, opts.Name)
	if err != nil {
		return err
	}

	ui.Successf("node %s provisioned (%s)", spec.Name, spec.Address)
	ui.Hintf("run bootstrap to join it to the cluster")
	return nil
}

// RemoveNodeOptions contains options for the remove-node command.
type RemoveNodeOptions struct {
	Name string
}

// RemoveNode retires a node: roster mark, VM destroy, best-effort count
// verification.
func RemoveNode(ctx context.Context, opts RemoveNodeOptions) error {
	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	manager := nodes.NewManager(ws, store, infra)
	manager.Warnf = ui.Warnf

	if err := manager.Remove(ctx, opts.Name); err != nil {
		return err
	}

	ui.Successf("node %s removed", opts.Name)
	return nil
}
