// Package bootstrap walks a workspace from bare infrastructure to a
// validated cluster. The state machine is linear; every mutating step
// carries an idempotency probe so re-running the whole workflow after a
// partial failure converges instead of corrupting.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/adapters/ansible"
	"github.com/proxcluster/cpc/internal/adapters/tofu"
	"github.com/proxcluster/cpc/internal/addons"
	"github.com/proxcluster/cpc/internal/nodes"
	"github.com/proxcluster/cpc/internal/recovery"
	"github.com/proxcluster/cpc/internal/util/async"
	"github.com/proxcluster/cpc/internal/util/retry"
	"github.com/proxcluster/cpc/internal/workspace"
)

// Phase is the bootstrap state machine position.
type Phase string

// Bootstrap phases, in order. Validated is terminal.
const (
	PhaseNotStarted              Phase = "NotStarted"
	PhaseComponentsInstalled     Phase = "ComponentsInstalled"
	PhaseControlPlaneInitialized Phase = "ControlPlaneInitialized"
	PhaseNetworkingInstalled     Phase = "NetworkingInstalled"
	PhaseWorkersJoined           Phase = "WorkersJoined"
	PhaseValidated               Phase = "Validated"
)

// Playbooks the configuration runner applies during bootstrap.
const (
	playbookRuntime      = "install-container-runtime.yaml"
	playbookKubernetes   = "install-kubernetes-packages.yaml"
	playbookControlPlane = "init-control-plane.yaml"
	playbookJoinWorkers  = "join-workers.yaml"
)

const (
	smokeNamespace = "default"
	smokeName      = "cpc-smoke-test"
	smokeReplicas  = 2
)

// nodeRequestorPrefix matches kubelet serving CSR requestors.
const nodeRequestorPrefix = "system:node:"

// Infra is the provisioner surface bootstrap needs.
type Infra interface {
	Apply(ctx context.Context, vars map[string]string) error
	Query(ctx context.Context) (*tofu.Snapshot, error)
	WaitForNodeCount(ctx context.Context, want int, opts adapters.WaitOptions) error
}

// ConfigRunner is the configuration-runner surface bootstrap needs.
type ConfigRunner interface {
	RunPlaybook(ctx context.Context, opts ansible.RunOptions) error
	WaitReachable(ctx context.Context, inv ansible.Inventory, opts adapters.WaitOptions) error
}

// Cluster is the control-plane surface bootstrap needs.
type Cluster interface {
	HasControlPlane(ctx context.Context) (bool, error)
	NodeExists(ctx context.Context, name string) (bool, error)
	PodsReady(ctx context.Context, namespace, selector string) (ready, total int, err error)
	WaitForNodeCount(ctx context.Context, want int, timeout time.Duration) error
	ApproveServingCSRs(ctx context.Context, requestorSubstring string) (int, error)
	CreateSmokeDeployment(ctx context.Context, namespace, name string, replicas int32) error
	WaitForPodsReady(ctx context.Context, namespace, selector string, timeout time.Duration) error
	PodHostAddresses(ctx context.Context, namespace, selector string) ([]string, error)
	DeleteDeployment(ctx context.Context, namespace, name string) error
}

// Networking installs the network plugin addon.
type Networking interface {
	Upgrade(ctx context.Context, name, requested string) addons.Result
}

// Orchestrator runs the bootstrap workflow for one workspace.
type Orchestrator struct {
	Workspace  *workspace.Workspace
	Infra      Infra
	Config     ConfigRunner
	Cluster    Cluster
	Networking Networking
	Log        *recovery.Log

	// Force re-runs control-plane initialization even when a control
	// plane already answers.
	Force bool

	// InfraTimeout bounds the wait for provisioned VMs; JoinTimeout the
	// wait for cluster node registration.
	InfraTimeout time.Duration
	JoinTimeout  time.Duration

	// Warnf reports non-fatal conditions. Defaults to log.Printf.
	Warnf func(format string, args ...any)

	// csrRetryOpts override the certificate-approval retry policy in
	// tests.
	csrRetryOpts []retry.Option

	phase Phase
}

// New returns an orchestrator wired to the three adapters.
func New(ws *workspace.Workspace, infra Infra, config ConfigRunner, cluster Cluster, networking Networking, checkpoints *recovery.Log) *Orchestrator {
	return &Orchestrator{
		Workspace:    ws,
		Infra:        infra,
		Config:       config,
		Cluster:      cluster,
		Networking:   networking,
		Log:          checkpoints,
		InfraTimeout: 10 * time.Minute,
		JoinTimeout:  10 * time.Minute,
	}
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Phase returns the state machine position reached so far.
func (o *Orchestrator) Phase() Phase {
	if o.phase == "" {
		return PhaseNotStarted
	}
	return o.phase
}

func (o *Orchestrator) advance(next Phase) {
	o.phase = next
	o.Log.Checkpoint("phase", string(next))
}

// extraVars renders the workspace's version pins and network parameters
// for the configuration runner.
func (o *Orchestrator) extraVars() map[string]string {
	vars := map[string]string{
		"kubernetes_version": o.Workspace.Versions.Kubernetes,
		"calico_version":     o.Workspace.Versions.Calico,
		"pod_network_cidr":   o.Workspace.Network.CIDR,
	}
	if o.Workspace.Network.DNSServer != "" {
		vars["dns_server"] = o.Workspace.Network.DNSServer
	}
	if o.Workspace.Network.Domain != "" {
		vars["cluster_domain"] = o.Workspace.Network.Domain
	}
	return vars
}

func inventoryFromSnapshot(snap *tofu.Snapshot) ansible.Inventory {
	var inv ansible.Inventory
	for _, node := range snap.Nodes {
		host := ansible.Host{Name: node.Name, Address: node.Address, Hostname: node.Hostname}
		if node.Role == workspace.RoleControlPlane {
			inv.ControlPlanes = append(inv.ControlPlanes, host)
		} else {
			inv.Workers = append(inv.Workers, host)
		}
	}
	return inv
}

// Run executes the bootstrap state machine. It returns the phase reached;
// a non-nil error means a hard-dependency step failed and the workflow
// stopped there. Re-running is the recovery path.
func (o *Orchestrator) Run(ctx context.Context) (Phase, error) {
	o.phase = PhaseNotStarted

	initialized, err := o.Cluster.HasControlPlane(ctx)
	skipInit := err == nil && initialized && !o.Force
	if skipInit {
		o.warnf("control plane already answers for this workspace; skipping re-initialization (use --force to override)")
	}

	snap, err := o.provisionInfrastructure(ctx)
	if err != nil {
		return o.Phase(), err
	}
	inv := inventoryFromSnapshot(snap)

	if err := o.installComponents(ctx, inv); err != nil {
		return o.Phase(), err
	}
	o.advance(PhaseComponentsInstalled)

	if err := o.initializeControlPlane(ctx, inv, skipInit); err != nil {
		return o.Phase(), err
	}
	o.advance(PhaseControlPlaneInitialized)

	if err := o.installNetworking(ctx); err != nil {
		return o.Phase(), err
	}
	o.advance(PhaseNetworkingInstalled)

	if err := o.joinWorkers(ctx, snap, inv); err != nil {
		return o.Phase(), err
	}
	o.advance(PhaseWorkersJoined)

	o.validate(ctx, snap)
	o.advance(PhaseValidated)
	return o.Phase(), nil
}

// provisionInfrastructure converges the VMs and waits until the
// provisioner reports every node.
func (o *Orchestrator) provisionInfrastructure(ctx context.Context) (*tofu.Snapshot, error) {
	vars := nodes.InfraVars(o.Workspace.Roster)

	ok := o.Log.Execute(ctx, recovery.Step{
		Name: "provision-infrastructure",
		Action: func(ctx context.Context) error {
			return o.Infra.Apply(ctx, vars)
		},
		OnFailureHint: "try running the infrastructure apply manually, then re-run bootstrap",
	})
	if !ok {
		return nil, fmt.Errorf("infrastructure provisioning failed")
	}

	snap, err := o.Infra.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioned infrastructure: %w", err)
	}
	if len(snap.Nodes) == 0 {
		if err := o.Infra.WaitForNodeCount(ctx, expectedNodes(o.Workspace.Roster), adapters.WaitOptions{
			Timeout:  o.InfraTimeout,
			Interval: 10 * time.Second,
		}); err != nil {
			return nil, err
		}
		if snap, err = o.Infra.Query(ctx); err != nil {
			return nil, fmt.Errorf("failed to read provisioned infrastructure: %w", err)
		}
	}
	return snap, nil
}

func expectedNodes(r workspace.Roster) int {
	vars := nodes.InfraVars(r)
	total := 0
	for _, v := range vars {
		n := 0
		_, _ = fmt.Sscanf(v, "%d", &n)
		total += n
	}
	return total
}

// installComponents waits for host reachability, then runs the two
// package-install playbooks concurrently while a progress monitor ticks
// alongside them; the monitor is cancelled the moment both finish.
func (o *Orchestrator) installComponents(ctx context.Context, inv ansible.Inventory) error {
	ok := o.Log.Execute(ctx, recovery.Step{
		Name: "install-components",
		Action: func(ctx context.Context) error {
			if err := o.Config.WaitReachable(ctx, inv, adapters.WaitOptions{
				Timeout:  5 * time.Minute,
				Interval: 10 * time.Second,
			}); err != nil {
				return err
			}

			tasks := []async.Task{
				{Name: "container-runtime", Func: func(ctx context.Context) error {
					return o.Config.RunPlaybook(ctx, ansible.RunOptions{
						Playbook:  playbookRuntime,
						Inventory: inv,
						ExtraVars: o.extraVars(),
					})
				}},
				{Name: "kubernetes-packages", Func: func(ctx context.Context) error {
					return o.Config.RunPlaybook(ctx, ansible.RunOptions{
						Playbook:  playbookKubernetes,
						Inventory: inv,
						ExtraVars: o.extraVars(),
					})
				}},
			}
			monitor := async.Task{Name: "progress", Func: func(ctx context.Context) error {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-ticker.C:
						log.Printf("still installing node components...")
					}
				}
			}}
			return async.RunWithMonitor(ctx, tasks, monitor)
		},
		OnFailureHint: "check host reachability and the package repositories, then re-run bootstrap",
	})
	if !ok {
		return fmt.Errorf("component installation failed")
	}
	return nil
}

// initializeControlPlane runs the init playbook unless the control plane
// already answers. The init primitive no-ops when already initialized; a
// failure here is surfaced as genuinely broken, not "not yet initialized".
func (o *Orchestrator) initializeControlPlane(ctx context.Context, inv ansible.Inventory, alreadyInitialized bool) error {
	if alreadyInitialized {
		o.Log.Checkpoint("init-control-plane", "skipped, control plane already initialized")
		return nil
	}

	ok := o.Log.Execute(ctx, recovery.Step{
		Name: "init-control-plane",
		Action: func(ctx context.Context) error {
			return o.Config.RunPlaybook(ctx, ansible.RunOptions{
				Playbook:  playbookControlPlane,
				Inventory: inv,
				ExtraVars: o.extraVars(),
			})
		},
		Validate: func(ctx context.Context) error {
			// Hard dependency: a timeout here is fatal.
			return o.Cluster.WaitForNodeCount(ctx, 1, o.JoinTimeout)
		},
		OnFailureHint: "inspect the control-plane init output on the first control-plane host; the cluster may be genuinely broken rather than uninitialized",
	})
	if !ok {
		return fmt.Errorf("control-plane initialization failed")
	}
	return nil
}

// installNetworking applies the network plugin unless its pods already
// run.
func (o *Orchestrator) installNetworking(ctx context.Context) error {
	def, _ := addons.Lookup("calico")
	if _, total, err := o.Cluster.PodsReady(ctx, def.Namespace, def.Selector); err == nil && total > 0 {
		o.Log.Checkpoint("install-networking", "skipped, network plugin pods already present")
		return nil
	}

	ok := o.Log.Execute(ctx, recovery.Step{
		Name: "install-networking",
		Action: func(ctx context.Context) error {
			res := o.Networking.Upgrade(ctx, def.Name, "")
			return res.Err
		},
		OnFailureHint: "apply the network plugin manifest manually and re-run bootstrap",
	})
	if !ok {
		return fmt.Errorf("network plugin installation failed")
	}
	return nil
}

// joinWorkers joins each worker that has not registered yet, then approves
// pending serving certificates and waits for full registration.
func (o *Orchestrator) joinWorkers(ctx context.Context, snap *tofu.Snapshot, inv ansible.Inventory) error {
	var pending []ansible.Host
	for _, host := range inv.Workers {
		joined, err := o.Cluster.NodeExists(ctx, host.Hostname)
		if err == nil && joined {
			o.Log.Checkpoint("join-workers", fmt.Sprintf("%s already joined", host.Name))
			continue
		}
		pending = append(pending, host)
	}

	ok := o.Log.Execute(ctx, recovery.Step{
		Name: "join-workers",
		Action: func(ctx context.Context) error {
			for _, host := range pending {
				if err := o.Config.RunPlaybook(ctx, ansible.RunOptions{
					Playbook:  playbookJoinWorkers,
					Inventory: inv,
					ExtraVars: o.extraVars(),
					Limit:     host.Name,
				}); err != nil {
					return fmt.Errorf("worker %s: %w", host.Name, err)
				}
			}
			return nil
		},
		Validate: func(ctx context.Context) error {
			if err := o.approveServingCertificates(ctx); err != nil {
				return err
			}
			return o.Cluster.WaitForNodeCount(ctx, len(snap.Nodes), o.JoinTimeout)
		},
		OnFailureHint: "check join output on the unjoined workers, then re-run bootstrap; already-joined workers are skipped",
	})
	if !ok {
		return fmt.Errorf("worker join failed")
	}
	return nil
}

// approveServingCertificates approves pending kubelet serving CSRs. The
// request objects may not exist yet right after a join, so the poll runs
// a few rounds; zero pending requests is success.
func (o *Orchestrator) approveServingCertificates(ctx context.Context) error {
	opts := o.csrRetryOpts
	if opts == nil {
		opts = []retry.Option{
			retry.WithMaxAttempts(5),
			retry.WithInitialDelay(3 * time.Second),
			retry.WithFixedBackoff(),
		}
	}

	approved := 0
	err := retry.Do(ctx, func() error {
		n, err := o.Cluster.ApproveServingCSRs(ctx, nodeRequestorPrefix)
		if err != nil {
			return adapters.Transient(err)
		}
		approved += n
		return nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to approve serving certificates: %w", err)
	}
	if approved > 0 {
		o.Log.Checkpoint("approve-serving-certificates", fmt.Sprintf("approved %d requests", approved))
	}
	return nil
}

// validate runs the best-effort smoke test: schedule a transient workload
// across at least two distinct addresses, then delete it. Failures are
// warnings; the cluster may still be usable.
func (o *Orchestrator) validate(ctx context.Context, snap *tofu.Snapshot) {
	selector := "app=" + smokeName

	if err := o.Cluster.CreateSmokeDeployment(ctx, smokeNamespace, smokeName, smokeReplicas); err != nil {
		o.warnf("validation: failed to create smoke workload: %v", err)
		return
	}
	defer func() {
		if err := o.Cluster.DeleteDeployment(ctx, smokeNamespace, smokeName); err != nil {
			o.warnf("validation: failed to clean up smoke workload: %v", err)
		}
	}()

	if err := o.Cluster.WaitForPodsReady(ctx, smokeNamespace, selector, 2*time.Minute); err != nil {
		o.warnf("validation: smoke workload not ready: %v", err)
		return
	}

	addrs, err := o.Cluster.PodHostAddresses(ctx, smokeNamespace, selector)
	if err != nil {
		o.warnf("validation: failed to inspect smoke workload placement: %v", err)
		return
	}
	want := 2
	if len(snap.Nodes) < 2 {
		want = len(snap.Nodes)
	}
	if len(addrs) < want {
		o.warnf("validation: smoke workload scheduled on %d distinct addresses, wanted %d", len(addrs), want)
		return
	}
	o.Log.Checkpoint("validate", fmt.Sprintf("smoke workload scheduled across %d addresses", len(addrs)))
}
