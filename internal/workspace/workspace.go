// Package workspace persists cluster identity: which workspace is active,
// and each workspace's version pins, network parameters, and node roster.
//
// A workspace is one cluster's provisioning context. Exactly one workspace
// is active per invocation; the CLI entry point resolves it once and passes
// the loaded value down to the orchestrators.
package workspace

// Role is a node's cluster role.
type Role string

// Supported node roles.
const (
	RoleWorker       Role = "worker"
	RoleControlPlane Role = "control-plane"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	return r == RoleWorker || r == RoleControlPlane
}

// MembershipState tracks a node through its lifecycle.
type MembershipState string

// Node membership states, in lifecycle order.
const (
	StatePlanned     MembershipState = "planned"
	StateProvisioned MembershipState = "provisioned"
	StateJoined      MembershipState = "joined"
	StateReady       MembershipState = "ready"
	StateRemoved     MembershipState = "removed"
)

var stateOrder = map[MembershipState]int{
	StatePlanned:     0,
	StateProvisioned: 1,
	StateJoined:      2,
	StateReady:       3,
}

// CanAdvanceTo reports whether the state may transition to next. Removal is
// allowed from any state; forward transitions must not skip the join step.
func (s MembershipState) CanAdvanceTo(next MembershipState) bool {
	if next == StateRemoved {
		return true
	}
	cur, ok := stateOrder[s]
	if !ok {
		return false
	}
	nxt, ok := stateOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// NodeSpec is one roster entry.
type NodeSpec struct {
	Name    string          `yaml:"name"`
	Role    Role            `yaml:"role"`
	State   MembershipState `yaml:"state"`
	Address string          `yaml:"address,omitempty"`
	InfraID string          `yaml:"infraId,omitempty"`
}

// Versions pins the software versions injected into the configuration
// runner and the addon orchestrator.
type Versions struct {
	Kubernetes string            `yaml:"kubernetes"`
	Calico     string            `yaml:"calico"`
	Addons     map[string]string `yaml:"addons,omitempty"`
}

// Network holds the workspace's network parameters.
type Network struct {
	CIDR      string `yaml:"cidr"`
	Gateway   string `yaml:"gateway,omitempty"`
	DNSServer string `yaml:"dnsServer,omitempty"`
	Domain    string `yaml:"domain,omitempty"`
}

// Workspace is the persisted per-cluster configuration.
type Workspace struct {
	Name     string   `yaml:"name"`
	Versions Versions `yaml:"versions"`
	Network  Network  `yaml:"network"`
	Roster   Roster   `yaml:"roster"`
}

// Default version pins for a freshly created workspace.
const (
	DefaultKubernetesVersion = "1.31.4"
	DefaultCalicoVersion     = "3.28.2"
)

// New returns a workspace with default version pins and an empty roster.
func New(name string) *Workspace {
	return &Workspace{
		Name: name,
		Versions: Versions{
			Kubernetes: DefaultKubernetesVersion,
			Calico:     DefaultCalicoVersion,
		},
		Network: Network{
			CIDR: "10.10.10.0/24",
		},
	}
}
