package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/adapters/ansible"
	"github.com/proxcluster/cpc/internal/adapters/tofu"
	"github.com/proxcluster/cpc/internal/addons"
	"github.com/proxcluster/cpc/internal/workspace"
)

// fakeInfra records every provisioner call and serves a canned snapshot.
type fakeInfra struct {
	mu         sync.Mutex
	selected   []string
	deleted    []string
	applies    []map[string]string
	destroys   []map[string]string
	snapshot   *tofu.Snapshot
	queryErr   error
	applyErr   error
	destroyErr error
	selectErr  error
}

func (f *fakeInfra) SelectWorkspace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, name)
	return f.selectErr
}

func (f *fakeInfra) DeleteWorkspace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeInfra) Apply(ctx context.Context, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies = append(f.applies, vars)
	return f.applyErr
}

func (f *fakeInfra) DestroyAll(ctx context.Context, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys = append(f.destroys, vars)
	return f.destroyErr
}

func (f *fakeInfra) Query(ctx context.Context) (*tofu.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.snapshot == nil {
		return &tofu.Snapshot{}, nil
	}
	return f.snapshot, nil
}

func (f *fakeInfra) WaitForNodeCount(ctx context.Context, want int, opts adapters.WaitOptions) error {
	return nil
}

// fakeConfig records playbook runs. The component-install step runs two
// playbooks concurrently, so access is locked.
type fakeConfig struct {
	mu      sync.Mutex
	runs    []ansible.RunOptions
	runErr  error
	failOn  string
	waitErr error
	pingErr error
}

func (f *fakeConfig) RunPlaybook(ctx context.Context, opts ansible.RunOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	if f.failOn != "" && opts.Playbook == f.failOn {
		return f.runErr
	}
	if f.failOn == "" && f.runErr != nil {
		return f.runErr
	}
	return nil
}

func (f *fakeConfig) WaitReachable(ctx context.Context, inv ansible.Inventory, opts adapters.WaitOptions) error {
	return f.waitErr
}

func (f *fakeConfig) Ping(ctx context.Context, inv ansible.Inventory) error {
	return f.pingErr
}

func (f *fakeConfig) playbooks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.runs))
	for _, run := range f.runs {
		names = append(names, run.Playbook)
	}
	return names
}

// fakeCluster satisfies the whole control-plane surface with canned data,
// keyed by pod selector where a method takes one.
type fakeCluster struct {
	mu sync.Mutex

	hasControlPlane bool
	existingNodes   map[string]bool
	controlPlanes   int
	workers         int
	podsBySelector  map[string][2]int // selector -> {ready, total}
	tagsBySelector  map[string]string
	hostAddresses   []string

	applied       []string
	smokeCreated  int
	smokeDeleted  int
	approvedCalls int
}

func (f *fakeCluster) HasControlPlane(ctx context.Context) (bool, error) {
	return f.hasControlPlane, nil
}

func (f *fakeCluster) NodeExists(ctx context.Context, name string) (bool, error) {
	return f.existingNodes[name], nil
}

func (f *fakeCluster) NodeCounts(ctx context.Context) (int, int, error) {
	return f.controlPlanes, f.workers, nil
}

func (f *fakeCluster) PodsReady(ctx context.Context, namespace, selector string) (int, int, error) {
	counts := f.podsBySelector[selector]
	return counts[0], counts[1], nil
}

func (f *fakeCluster) ImageTag(ctx context.Context, namespace, selector, container string) (string, error) {
	return f.tagsBySelector[selector], nil
}

func (f *fakeCluster) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	return true, nil
}

func (f *fakeCluster) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	return true, nil
}

func (f *fakeCluster) SupportsServerSideApply() bool { return true }

func (f *fakeCluster) ApplyManifest(ctx context.Context, manifest string, serverSide bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, manifest)
	return nil
}

func (f *fakeCluster) CRDNamesBySuffix(ctx context.Context, suffix string) ([]string, error) {
	return nil, nil
}

func (f *fakeCluster) CRDAnnotationSize(ctx context.Context, crdName, annotation string) (int, error) {
	return 0, nil
}

func (f *fakeCluster) StripCRDAnnotation(ctx context.Context, crdName, annotation string) error {
	return nil
}

func (f *fakeCluster) WaitForNodeCount(ctx context.Context, want int, timeout time.Duration) error {
	return nil
}

func (f *fakeCluster) WaitForPodsReady(ctx context.Context, namespace, selector string, timeout time.Duration) error {
	return nil
}

func (f *fakeCluster) ApproveServingCSRs(ctx context.Context, requestorSubstring string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvedCalls++
	return 0, nil
}

func (f *fakeCluster) CreateSmokeDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smokeCreated++
	return nil
}

func (f *fakeCluster) PodHostAddresses(ctx context.Context, namespace, selector string) ([]string, error) {
	return f.hostAddresses, nil
}

func (f *fakeCluster) DeleteDeployment(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smokeDeleted++
	return nil
}

// fakeExecutor stands in for the SSH client.
type fakeExecutor struct {
	output    string
	err       error
	reachable bool
}

func (f *fakeExecutor) Execute(ctx context.Context, command string) (string, error) {
	return f.output, f.err
}

func (f *fakeExecutor) Reachable(ctx context.Context, timeout time.Duration) bool {
	return f.reachable
}

// fakeHelm records release installs.
type fakeHelm struct {
	mu       sync.Mutex
	installs []string
	err      error
}

func (f *fakeHelm) InstallOrUpgrade(kubeconfig []byte, namespace, releaseName, repoURL, chartName, version string, values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs = append(f.installs, releaseName+"@"+version)
	return f.err
}

// harness swaps every injection seam for fakes and restores them when the
// test finishes.
type harness struct {
	store   *workspace.Store
	infra   *fakeInfra
	config  *fakeConfig
	cluster *fakeCluster
	exec    *fakeExecutor
	helm    *fakeHelm
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   &workspace.Store{BaseDir: t.TempDir()},
		infra:   &fakeInfra{},
		config:  &fakeConfig{},
		cluster: &fakeCluster{},
		exec:    &fakeExecutor{reachable: true},
		helm:    &fakeHelm{},
	}

	origStore := newStore
	origInfra := newInfra
	origConfig := newConfigRunner
	origCluster := newClusterClient
	origExec := newRemoteExecutor
	origHelm := newHelm
	t.Cleanup(func() {
		newStore = origStore
		newInfra = origInfra
		newConfigRunner = origConfig
		newClusterClient = origCluster
		newRemoteExecutor = origExec
		newHelm = origHelm
	})

	newStore = func() (*workspace.Store, error) { return h.store, nil }
	newInfra = func(dir string) infraClient { return h.infra }
	newConfigRunner = func(dir string) configRunner { return h.config }
	newClusterClient = func(path string, fetch func(ctx context.Context) error) clusterClient { return h.cluster }
	newRemoteExecutor = func(host string) (remoteExecutor, error) { return h.exec, nil }
	newHelm = func() addons.Helm { return h.helm }

	return h
}

// activate saves the workspace and marks it active.
func (h *harness) activate(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	if err := h.store.Save(ws); err != nil {
		t.Fatalf("save workspace: %v", err)
	}
	if err := h.store.SetActiveContext(ws.Name); err != nil {
		t.Fatalf("set active context: %v", err)
	}
}
