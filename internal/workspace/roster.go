package workspace

import (
	"fmt"
	"regexp"
	"strconv"
)

// Roster is the ordered set of nodes belonging to a workspace. Name
// uniqueness and the protected-slot rules are enforced here, at the one
// encode/decode boundary, rather than re-derived by every caller.
type Roster []NodeSpec

// Node names come in two variants: the canonical "worker-3" and a legacy
// "worker3" form written by earlier releases. Both occupy the same slot.
var nodeNameRE = regexp.MustCompile(`^(worker|control-plane|controlplane)-?(\d+)$`)

// ParseNodeName splits a node name into role and numeric suffix, accepting
// the legacy no-dash variant.
func ParseNodeName(name string) (Role, int, bool) {
	m := nodeNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return "", 0, false
	}
	role := RoleWorker
	if m[1] != "worker" {
		role = RoleControlPlane
	}
	return role, n, true
}

// NodeName renders the canonical name for a role and suffix.
func NodeName(role Role, n int) string {
	return fmt.Sprintf("%s-%d", role, n)
}

// protectedSlots is the number of leading per-role indices that cannot be
// removed through the node lifecycle path (the initial/base nodes).
const protectedSlots = 2

// IsProtectedName reports whether the name refers to a base node.
func IsProtectedName(name string) bool {
	_, n, ok := ParseNodeName(name)
	return ok && n <= protectedSlots
}

// Find returns the roster entry with the given name, if present. Lookup is
// by slot: "worker-3" and "worker3" match each other.
func (r Roster) Find(name string) (NodeSpec, bool) {
	role, n, ok := ParseNodeName(name)
	if !ok {
		return NodeSpec{}, false
	}
	for _, node := range r {
		nr, nn, nok := ParseNodeName(node.Name)
		if nok && nr == role && nn == n {
			return node, true
		}
	}
	return NodeSpec{}, false
}

// Contains reports whether any entry occupies the same slot as name, under
// either naming variant and regardless of membership state.
func (r Roster) Contains(name string) bool {
	_, ok := r.Find(name)
	return ok
}

// Add appends a node after checking slot uniqueness against every entry,
// including removed history entries.
func (r *Roster) Add(node NodeSpec) error {
	if _, _, ok := ParseNodeName(node.Name); !ok {
		return &ValidationError{Field: "node name", Msg: fmt.Sprintf("%q does not match <role>-<n>", node.Name)}
	}
	if !node.Role.Valid() {
		return &ValidationError{Field: "role", Msg: fmt.Sprintf("unsupported role %q", node.Role)}
	}
	if r.Contains(node.Name) {
		return &ValidationError{Field: "node name", Msg: fmt.Sprintf("%q already occupies a roster slot", node.Name)}
	}
	*r = append(*r, node)
	return nil
}

// SetState advances a node's membership state, enforcing lifecycle order.
func (r Roster) SetState(name string, next MembershipState) error {
	for i := range r {
		if r[i].Name == name {
			if !r[i].State.CanAdvanceTo(next) {
				return fmt.Errorf("node %s: invalid transition %s -> %s", name, r[i].State, next)
			}
			r[i].State = next
			return nil
		}
	}
	return fmt.Errorf("node %s not in roster", name)
}

// MarkRemoved flags the entry as removed. The slot stays occupied so its
// numeric suffix is never handed out again.
func (r Roster) MarkRemoved(name string) error {
	return r.SetState(name, StateRemoved)
}

// Active returns entries that have not been removed.
func (r Roster) Active() Roster {
	var out Roster
	for _, node := range r {
		if node.State != StateRemoved {
			out = append(out, node)
		}
	}
	return out
}

// ByRole returns active entries with the given role.
func (r Roster) ByRole(role Role) Roster {
	var out Roster
	for _, node := range r.Active() {
		if node.Role == role {
			out = append(out, node)
		}
	}
	return out
}

// HighestSuffix returns the highest numeric suffix used by any entry of the
// role, in any membership state, under either naming variant. Zero means no
// entry uses the role.
func (r Roster) HighestSuffix(role Role) int {
	highest := 0
	for _, node := range r {
		nr, n, ok := ParseNodeName(node.Name)
		if ok && nr == role && n > highest {
			highest = n
		}
	}
	return highest
}
