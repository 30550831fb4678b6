// Package status reports cluster health across the three systems of
// record. Fast mode serves cached counts for frequent polling; full mode
// runs every check live with per-check failure isolation.
package status

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/proxcluster/cpc/internal/adapters/tofu"
)

// Cache freshness bounds for fast mode.
const (
	SSHCacheTTL   = 10 * time.Second
	InfraCacheTTL = 300 * time.Second
)

// DefaultProbeTimeout bounds one SSH reachability probe.
const DefaultProbeTimeout = 5 * time.Second

// Infra is the provisioner surface the aggregator needs.
type Infra interface {
	Query(ctx context.Context) (*tofu.Snapshot, error)
}

// Cluster is the control-plane surface the aggregator needs.
type Cluster interface {
	NodeCounts(ctx context.Context) (controlPlanes, workers int, err error)
	DeploymentReady(ctx context.Context, namespace, name string) (bool, error)
	DaemonSetReady(ctx context.Context, namespace, name string) (bool, error)
}

// Prober answers whether one address accepts SSH within the timeout.
type Prober interface {
	Reachable(ctx context.Context, address string, timeout time.Duration) bool
}

// Summary is the fast-mode result: counts only.
type Summary struct {
	VMs          int
	Reachable    int
	Probed       int
	ClusterNodes int // -1 when the control plane could not be queried
}

// Check is one full-mode probe outcome. A failed check carries its error
// and never aborts the remaining checks.
type Check struct {
	Name   string
	OK     bool
	Detail string
	Err    error
}

// Aggregator collects status for one workspace.
type Aggregator struct {
	Context string
	Infra   Infra
	Cluster Cluster
	Probe   Prober

	// CacheDir holds the fast-mode cache files. Defaults to os.TempDir().
	CacheDir string

	// ProbeTimeout bounds each SSH probe. Defaults to DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// now is injectable for cache-freshness tests.
	now func() time.Time
}

// NewAggregator returns an aggregator for the named workspace context.
func NewAggregator(contextName string, infra Infra, cluster Cluster, probe Prober) *Aggregator {
	return &Aggregator{
		Context: contextName,
		Infra:   infra,
		Cluster: cluster,
		Probe:   probe,
	}
}

func (a *Aggregator) cacheDir() string {
	if a.CacheDir != "" {
		return a.CacheDir
	}
	return os.TempDir()
}

func (a *Aggregator) probeTimeout() time.Duration {
	if a.ProbeTimeout > 0 {
		return a.ProbeTimeout
	}
	return DefaultProbeTimeout
}

func (a *Aggregator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *Aggregator) probeAll(ctx context.Context, addresses []string) (reachable int) {
	for _, addr := range addresses {
		if a.Probe.Reachable(ctx, addr, a.probeTimeout()) {
			reachable++
		}
	}
	return reachable
}

// Fast returns cached counts, refreshing each cache past its freshness
// bound. The infra snapshot ages out at 300s, SSH reachability at 10s.
func (a *Aggregator) Fast(ctx context.Context) (Summary, error) {
	snap, err := a.cachedSnapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("infrastructure query failed: %w", err)
	}

	addresses := make([]string, 0, len(snap.Nodes))
	for _, node := range snap.Nodes {
		if node.Address != "" {
			addresses = append(addresses, node.Address)
		}
	}

	reachable, err := a.cachedReachability(ctx, addresses)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		VMs:          len(snap.Nodes),
		Reachable:    reachable,
		Probed:       len(addresses),
		ClusterNodes: -1,
	}
	if cp, workers, err := a.Cluster.NodeCounts(ctx); err == nil {
		summary.ClusterNodes = cp + workers
	}
	return summary, nil
}

// Full runs every check live and sequentially. One check's failure is
// reported inline and the rest still run.
func (a *Aggregator) Full(ctx context.Context) []Check {
	var checks []Check

	snap, err := a.Infra.Query(ctx)
	if err != nil {
		checks = append(checks, Check{Name: "infrastructure", Err: err})
		snap = &tofu.Snapshot{}
	} else {
		checks = append(checks, Check{
			Name:   "infrastructure",
			OK:     len(snap.Nodes) > 0,
			Detail: fmt.Sprintf("%d VMs deployed", len(snap.Nodes)),
		})
	}

	reachable := 0
	probed := 0
	for _, node := range snap.Nodes {
		if node.Address == "" {
			continue
		}
		probed++
		if a.Probe.Reachable(ctx, node.Address, a.probeTimeout()) {
			reachable++
		}
	}
	checks = append(checks, Check{
		Name:   "ssh",
		OK:     probed > 0 && reachable == probed,
		Detail: fmt.Sprintf("%d/%d nodes reachable", reachable, probed),
	})

	cp, workers, err := a.Cluster.NodeCounts(ctx)
	if err != nil {
		checks = append(checks, Check{Name: "control-plane nodes", Err: err})
		checks = append(checks, Check{Name: "worker nodes", Err: err})
	} else {
		checks = append(checks,
			Check{Name: "control-plane nodes", OK: cp > 0, Detail: fmt.Sprintf("%d joined", cp)},
			Check{Name: "worker nodes", OK: workers > 0, Detail: fmt.Sprintf("%d joined", workers)},
		)
	}

	checks = append(checks, readinessCheck(ctx, "coredns", func() (bool, error) {
		return a.Cluster.DeploymentReady(ctx, "kube-system", "coredns")
	}))
	checks = append(checks, readinessCheck(ctx, "calico", func() (bool, error) {
		return a.Cluster.DaemonSetReady(ctx, "kube-system", "calico-node")
	}))

	return checks
}

func readinessCheck(_ context.Context, name string, probe func() (bool, error)) Check {
	ready, err := probe()
	if err != nil {
		return Check{Name: name, Err: err}
	}
	detail := "ready"
	if !ready {
		detail = "not ready"
	}
	return Check{Name: name, OK: ready, Detail: detail}
}
