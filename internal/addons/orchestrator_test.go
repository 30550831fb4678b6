package addons

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/workspace"
)

type fakeCluster struct {
	liveVersions map[string]string // selector -> image tag
	readyAll     bool
	serverSide   bool

	applyCalls   int
	applyErr     error
	lastManifest string
	lastSSA      bool

	crds           map[string]int // crd name -> annotation size
	strippedCRDs   []string
	waitErr        error
	waitTimeoutCnt int
}

func (f *fakeCluster) ImageTag(_ context.Context, _, selector, _ string) (string, error) {
	return f.liveVersions[selector], nil
}

func (f *fakeCluster) PodsReady(_ context.Context, _, selector string) (int, int, error) {
	if f.liveVersions[selector] == "" {
		return 0, 0, nil
	}
	if f.readyAll {
		return 2, 2, nil
	}
	return 1, 2, nil
}

func (f *fakeCluster) SupportsServerSideApply() bool { return f.serverSide }

func (f *fakeCluster) ApplyManifest(_ context.Context, manifest string, serverSide bool) error {
	f.applyCalls++
	f.lastManifest = manifest
	f.lastSSA = serverSide
	return f.applyErr
}

func (f *fakeCluster) CRDNamesBySuffix(_ context.Context, suffix string) ([]string, error) {
	var names []string
	for name := range f.crds {
		names = append(names, name)
	}
	_ = suffix
	return names, nil
}

func (f *fakeCluster) CRDAnnotationSize(_ context.Context, crdName, _ string) (int, error) {
	return f.crds[crdName], nil
}

func (f *fakeCluster) StripCRDAnnotation(_ context.Context, crdName, _ string) error {
	f.strippedCRDs = append(f.strippedCRDs, crdName)
	f.crds[crdName] = 0
	return nil
}

func (f *fakeCluster) WaitForPodsReady(context.Context, string, string, time.Duration) error {
	if f.waitErr != nil {
		f.waitTimeoutCnt++
		return f.waitErr
	}
	return nil
}

type fakeHelm struct {
	installs []string // "release@version"
	err      error
}

func (f *fakeHelm) InstallOrUpgrade(_ []byte, _, releaseName, _, _, version string, _ map[string]any) error {
	f.installs = append(f.installs, fmt.Sprintf("%s@%s", releaseName, version))
	return f.err
}

func newOrchestrator(cluster *fakeCluster, helm *fakeHelm) *Orchestrator {
	o := NewOrchestrator(cluster, helm, []byte("kubeconfig"), workspace.New("test"))
	o.Warnf = func(string, ...any) {}
	o.Fetch = func(_ context.Context, url string) (string, error) {
		return "# manifest from " + url, nil
	}
	return o
}

func TestUpgradeSkipsWhenCurrentAndReady(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{
		liveVersions: map[string]string{"k8s-app=calico-node": "3.28.2"},
		readyAll:     true,
	}
	o := newOrchestrator(cluster, &fakeHelm{})

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "3.28.2", res.Before)
	assert.Equal(t, "3.28.2", res.After)
	assert.Zero(t, cluster.applyCalls)
}

func TestUpgradeAppliesWhenVersionMatchesButPodsNotReady(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{
		liveVersions: map[string]string{"k8s-app=calico-node": "3.28.2"},
		readyAll:     false,
		crds:         map[string]int{},
	}
	o := newOrchestrator(cluster, &fakeHelm{})

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, cluster.applyCalls)
}

func TestUpgradeNotInstalledApplies(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{liveVersions: map[string]string{}, crds: map[string]int{}}
	o := newOrchestrator(cluster, &fakeHelm{})

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Before)
	assert.Equal(t, "3.28.2", res.Target)
	assert.Equal(t, 1, cluster.applyCalls)
	assert.Contains(t, cluster.lastManifest, "v3.28.2/manifests/calico.yaml")
}

func TestUpgradeExplicitVersionWins(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{liveVersions: map[string]string{}, crds: map[string]int{}}
	o := newOrchestrator(cluster, &fakeHelm{})
	o.Pins = map[string]string{"calico": "3.27.0"}

	res := o.Upgrade(context.Background(), "calico", "3.29.0")
	require.NoError(t, res.Err)
	assert.Equal(t, "3.29.0", res.Target)
	assert.Contains(t, cluster.lastManifest, "v3.29.0")
}

func TestUpgradeWorkspacePinBeatsDefault(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{liveVersions: map[string]string{}, crds: map[string]int{}}
	o := newOrchestrator(cluster, &fakeHelm{})
	o.Pins = map[string]string{"calico": "3.27.0"}

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.Equal(t, "3.27.0", res.Target)
}

func TestUpgradeStripsOversizedCRDAnnotations(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{
		liveVersions: map[string]string{},
		crds: map[string]int{
			"felixconfigurations.crd.projectcalico.org": 250 * 1024,
			"ippools.crd.projectcalico.org":             1024,
		},
	}
	o := newOrchestrator(cluster, &fakeHelm{})

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"felixconfigurations.crd.projectcalico.org"}, cluster.strippedCRDs)
}

func TestUpgradeAnnotationLimitIsConfigurable(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{
		liveVersions: map[string]string{},
		crds:         map[string]int{"ippools.crd.projectcalico.org": 2048},
	}
	o := newOrchestrator(cluster, &fakeHelm{})
	o.AnnotationLimit = 1024

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"ippools.crd.projectcalico.org"}, cluster.strippedCRDs)
}

func TestUpgradeUsesServerSideApplyWhenSupported(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{liveVersions: map[string]string{}, crds: map[string]int{}, serverSide: true}
	o := newOrchestrator(cluster, &fakeHelm{})

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.True(t, cluster.lastSSA)
}

func TestUpgradeReadinessTimeoutIsWarningNotFailure(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{
		liveVersions: map[string]string{},
		crds:         map[string]int{},
		waitErr:      &adapters.TimeoutError{Op: "pods ready", Timeout: time.Second},
	}
	o := newOrchestrator(cluster, &fakeHelm{})

	var warnings []string
	o.Warnf = func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	res := o.Upgrade(context.Background(), "calico", "")
	require.NoError(t, res.Err)
	assert.NotEmpty(t, warnings)
}

func TestUpgradeHelmAddonUsesChartVersion(t *testing.T) {
	t.Parallel()

	helm := &fakeHelm{}
	cluster := &fakeCluster{liveVersions: map[string]string{}}
	o := newOrchestrator(cluster, helm)

	res := o.Upgrade(context.Background(), "metrics-server", "")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"metrics-server@3.12.2"}, helm.installs)

	// cert-manager's chart is versioned in lockstep with its image.
	res = o.Upgrade(context.Background(), "cert-manager", "")
	require.NoError(t, res.Err)
	assert.Contains(t, helm.installs, "cert-manager@1.16.2")
}

func TestUpgradeUnknownAddon(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeCluster{liveVersions: map[string]string{}}, &fakeHelm{})
	res := o.Upgrade(context.Background(), "dashboard", "")
	require.Error(t, res.Err)

	var verr *workspace.ValidationError
	assert.ErrorAs(t, res.Err, &verr)
}

func TestUpgradeAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	helm := &fakeHelm{err: errors.New("chart fetch failed")}
	cluster := &fakeCluster{liveVersions: map[string]string{}, crds: map[string]int{}}
	o := newOrchestrator(cluster, helm)

	results := o.UpgradeAll(context.Background(), "")
	require.Len(t, results, len(Names()))

	byName := map[string]Result{}
	for _, res := range results {
		byName[res.Addon] = res
	}

	// Helm addons fail, the raw-manifest addon still succeeds.
	assert.True(t, byName["cert-manager"].Failed())
	assert.True(t, byName["metallb"].Failed())
	assert.False(t, byName["calico"].Failed())
	assert.Equal(t, 1, cluster.applyCalls)
}

func TestNamesAndLookup(t *testing.T) {
	t.Parallel()

	names := Names()
	assert.Contains(t, names, "calico")
	assert.Contains(t, names, "coredns")

	def, ok := Lookup("calico")
	require.True(t, ok)
	assert.Equal(t, "crd.projectcalico.org", def.CRDSuffix)
	assert.NotNil(t, def.ManifestURL)

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}
