// Package nodes manages the cluster roster: suffix allocation, node
// creation, and node removal. Joining a node to the cluster is a separate
// workflow; a freshly created VM is not guaranteed reachable yet.
package nodes

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/proxcluster/cpc/internal/adapters/tofu"
	"github.com/proxcluster/cpc/internal/workspace"
)

// Base suffixes per role. Indices below these belong to the initial/base
// nodes created at bootstrap and are never allocated or removed here.
const (
	workerBase       = 3
	controlPlaneBase = 2
)

// Infra is the provisioner surface the manager needs.
type Infra interface {
	Apply(ctx context.Context, vars map[string]string) error
	Query(ctx context.Context) (*tofu.Snapshot, error)
}

// Saver persists roster mutations.
type Saver interface {
	Save(ws *workspace.Workspace) error
}

// Manager mutates one workspace's roster and converges infrastructure to
// match it.
type Manager struct {
	Workspace *workspace.Workspace
	Store     Saver
	Infra     Infra

	// Warnf reports best-effort verification mismatches. Defaults to
	// log.Printf.
	Warnf func(format string, args ...any)
}

// NewManager returns a manager for the workspace.
func NewManager(ws *workspace.Workspace, store Saver, infra Infra) *Manager {
	return &Manager{Workspace: ws, Store: store, Infra: infra, Warnf: log.Printf}
}

func (m *Manager) warnf(format string, args ...any) {
	if m.Warnf != nil {
		m.Warnf(format, args...)
	}
}

// roleBase returns the first suffix this path may allocate for the role.
func roleBase(role workspace.Role) int {
	if role == workspace.RoleControlPlane {
		return controlPlaneBase
	}
	return workerBase
}

// NextName allocates the next canonical node name for the role. Suffixes
// of removed nodes stay burned: the scan covers every roster entry
// regardless of membership state, under either naming variant.
func (m *Manager) NextName(role workspace.Role) (string, error) {
	if !role.Valid() {
		return "", &workspace.ValidationError{Field: "role", Msg: fmt.Sprintf("unsupported role %q", role)}
	}
	highest := m.Workspace.Roster.HighestSuffix(role)
	next := roleBase(role)
	if highest >= next {
		next = highest + 1
	}
	return workspace.NodeName(role, next), nil
}

// InfraVars renders a roster's per-role node counts as provisioner
// override variables. Base slots count even when the roster does not track
// them explicitly; the provisioner always owns them.
func InfraVars(r workspace.Roster) map[string]string {
	return map[string]string{
		"worker_count":        strconv.Itoa(len(r.ByRole(workspace.RoleWorker)) + protectedCount(r, workspace.RoleWorker)),
		"control_plane_count": strconv.Itoa(len(r.ByRole(workspace.RoleControlPlane)) + protectedCount(r, workspace.RoleControlPlane)),
	}
}

func (m *Manager) infraVars() map[string]string {
	return InfraVars(m.Workspace.Roster)
}

// protectedCount counts base slots of a role that the roster does not
// track explicitly.
func protectedCount(r workspace.Roster, role workspace.Role) int {
	base := roleBase(role)
	tracked := 0
	for _, node := range r.ByRole(role) {
		if _, n, ok := workspace.ParseNodeName(node.Name); ok && n < base {
			tracked++
		}
	}
	return (base - 1) - tracked
}

// Add allocates (or validates) a node name, records it in the roster, and
// converges infrastructure so the VM exists. The node is left in the
// provisioned state; joining it is the caller's next workflow.
func (m *Manager) Add(ctx context.Context, role workspace.Role, explicitName string) (workspace.NodeSpec, error) {
	name := explicitName
	if name == "" {
		var err error
		name, err = m.NextName(role)
		if err != nil {
			return workspace.NodeSpec{}, err
		}
	} else {
		parsedRole, _, ok := workspace.ParseNodeName(name)
		if !ok {
			return workspace.NodeSpec{}, &workspace.ValidationError{Field: "node name", Msg: fmt.Sprintf("%q does not match <role>-<n>", name)}
		}
		if parsedRole != role {
			return workspace.NodeSpec{}, &workspace.ValidationError{Field: "node name", Msg: fmt.Sprintf("%q does not belong to role %s", name, role)}
		}
	}

	node := workspace.NodeSpec{Name: name, Role: role, State: workspace.StatePlanned}
	if err := m.Workspace.Roster.Add(node); err != nil {
		return workspace.NodeSpec{}, err
	}
	if err := m.Store.Save(m.Workspace); err != nil {
		return workspace.NodeSpec{}, fmt.Errorf("failed to persist roster: %w", err)
	}

	if err := m.Infra.Apply(ctx, m.infraVars()); err != nil {
		return node, fmt.Errorf("node %s recorded but infrastructure apply failed (re-run add or apply manually): %w", name, err)
	}

	// Pick up address and VM identifier if the provisioner reports them
	// already; a lagging snapshot is not an error.
	if snap, err := m.Infra.Query(ctx); err == nil {
		if info, ok := snap.Find(name); ok {
			for i := range m.Workspace.Roster {
				if m.Workspace.Roster[i].Name == name {
					m.Workspace.Roster[i].Address = info.Address
					m.Workspace.Roster[i].InfraID = info.InfraID
				}
			}
		}
	}

	if err := m.Workspace.Roster.SetState(name, workspace.StateProvisioned); err != nil {
		return node, err
	}
	if err := m.Store.Save(m.Workspace); err != nil {
		return node, fmt.Errorf("failed to persist roster: %w", err)
	}

	spec, _ := m.Workspace.Roster.Find(name)
	return spec, nil
}

// Remove marks the node removed and converges infrastructure so the VM is
// destroyed. Base nodes (per-role indices 1-2) are rejected before any side
// effect. Count verification afterward is best-effort: a mismatch is
// reported but does not fail the operation.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if workspace.IsProtectedName(name) {
		return &workspace.ValidationError{Field: "node name", Msg: fmt.Sprintf("%q is a base node and cannot be removed", name)}
	}
	spec, ok := m.Workspace.Roster.Find(name)
	if !ok {
		return &workspace.ValidationError{Field: "node name", Msg: fmt.Sprintf("%q is not in the roster", name)}
	}
	if spec.State == workspace.StateRemoved {
		return &workspace.ValidationError{Field: "node name", Msg: fmt.Sprintf("%q is already removed", name)}
	}

	before := -1
	if snap, err := m.Infra.Query(ctx); err == nil {
		before = len(snap.Nodes)
	}

	if err := m.Workspace.Roster.MarkRemoved(spec.Name); err != nil {
		return err
	}
	if err := m.Store.Save(m.Workspace); err != nil {
		return fmt.Errorf("failed to persist roster: %w", err)
	}

	if err := m.Infra.Apply(ctx, m.infraVars()); err != nil {
		return fmt.Errorf("node %s marked removed but infrastructure apply failed; the VM may still exist (re-run remove or apply manually): %w", name, err)
	}

	if before >= 0 {
		if snap, err := m.Infra.Query(ctx); err == nil && len(snap.Nodes) != before-1 {
			m.warnf("expected %d provisioned nodes after removing %s, provisioner reports %d", before-1, name, len(snap.Nodes))
		}
	}
	return nil
}
