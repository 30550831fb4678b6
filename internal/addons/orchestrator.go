package addons

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/workspace"
)

// DefaultAnnotationLimit is the metadata size above which the last-applied
// annotation risks tripping the API server's write-size limit. The limit is
// a property of the cluster, not of this tool, so it stays configurable.
const DefaultAnnotationLimit = 200 * 1024

// DefaultReadyTimeout bounds the post-apply readiness wait.
const DefaultReadyTimeout = 300 * time.Second

// Cluster is the control-plane surface the orchestrator needs.
type Cluster interface {
	ImageTag(ctx context.Context, namespace, selector, container string) (string, error)
	PodsReady(ctx context.Context, namespace, selector string) (ready, total int, err error)
	SupportsServerSideApply() bool
	ApplyManifest(ctx context.Context, manifest string, serverSide bool) error
	CRDNamesBySuffix(ctx context.Context, suffix string) ([]string, error)
	CRDAnnotationSize(ctx context.Context, crdName, annotation string) (int, error)
	StripCRDAnnotation(ctx context.Context, crdName, annotation string) error
	WaitForPodsReady(ctx context.Context, namespace, selector string, timeout time.Duration) error
}

// Helm converges helm releases.
type Helm interface {
	InstallOrUpgrade(kubeconfig []byte, namespace, releaseName, repoURL, chartName, version string, values map[string]any) error
}

// Result is the per-addon outcome of an upgrade run.
type Result struct {
	Addon   string
	Before  string // live version before, empty when not installed
	After   string // live version after apply
	Target  string
	Skipped bool // already current, apply never invoked
	Err     error
}

// Failed reports whether the addon's apply failed.
func (r Result) Failed() bool { return r.Err != nil }

// Orchestrator upgrades addons one at a time. Failures are isolated per
// addon: in an all-addons run one failure does not stop the rest.
type Orchestrator struct {
	Cluster    Cluster
	Helm       Helm
	Kubeconfig []byte

	// Pins are the workspace's per-addon version pins, consulted between
	// an explicit request and the built-in default.
	Pins map[string]string

	// AnnotationLimit overrides DefaultAnnotationLimit when positive.
	AnnotationLimit int

	// ReadyTimeout overrides DefaultReadyTimeout when positive.
	ReadyTimeout time.Duration

	// Fetch downloads a raw manifest. Defaults to an HTTP GET.
	Fetch func(ctx context.Context, url string) (string, error)

	// Warnf reports non-fatal conditions. Defaults to log.Printf.
	Warnf func(format string, args ...any)
}

// NewOrchestrator returns an orchestrator over the given cluster and helm
// clients, with version pins from the workspace.
func NewOrchestrator(cluster Cluster, helm Helm, kubeconfig []byte, ws *workspace.Workspace) *Orchestrator {
	o := &Orchestrator{
		Cluster:    cluster,
		Helm:       helm,
		Kubeconfig: kubeconfig,
	}
	if ws != nil {
		o.Pins = make(map[string]string, len(ws.Versions.Addons)+1)
		for name, pin := range ws.Versions.Addons {
			o.Pins[name] = pin
		}
		if ws.Versions.Calico != "" {
			if _, ok := o.Pins["calico"]; !ok {
				o.Pins["calico"] = ws.Versions.Calico
			}
		}
	}
	return o
}

func (o *Orchestrator) annotationLimit() int {
	if o.AnnotationLimit > 0 {
		return o.AnnotationLimit
	}
	return DefaultAnnotationLimit
}

func (o *Orchestrator) readyTimeout() time.Duration {
	if o.ReadyTimeout > 0 {
		return o.ReadyTimeout
	}
	return DefaultReadyTimeout
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (o *Orchestrator) fetch(ctx context.Context, url string) (string, error) {
	if o.Fetch != nil {
		return o.Fetch(ctx, url)
	}
	return fetchHTTP(ctx, url)
}

func fetchHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", adapters.Transient(fmt.Errorf("failed to fetch %s: %w", url, err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", adapters.Fatal(fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", adapters.Transient(fmt.Errorf("failed to read %s: %w", url, err))
	}
	return string(body), nil
}

// resolveVersion picks the target: explicit request, then workspace pin,
// then the built-in default.
func (o *Orchestrator) resolveVersion(def Definition, requested string) string {
	if requested != "" {
		return requested
	}
	if pin := o.Pins[def.Name]; pin != "" {
		return pin
	}
	return def.DefaultVersion
}

// Upgrade converges one addon to the target version. The returned result
// always carries the addon name and target; Err is set only when the apply
// itself failed. Readiness-wait timeouts are warnings.
func (o *Orchestrator) Upgrade(ctx context.Context, name, requested string) Result {
	def, ok := Lookup(name)
	if !ok {
		return Result{Addon: name, Err: &workspace.ValidationError{
			Field: "addon", Msg: fmt.Sprintf("unknown addon %q (supported: %v)", name, Names()),
		}}
	}

	target := o.resolveVersion(def, requested)
	res := Result{Addon: def.Name, Target: target}

	live, err := o.Cluster.ImageTag(ctx, def.Namespace, def.Selector, def.Container)
	if err != nil {
		o.warnf("addon %s: live version query failed, assuming not installed: %v", def.Name, err)
		live = ""
	}
	res.Before = live

	if live == target {
		ready, total, err := o.Cluster.PodsReady(ctx, def.Namespace, def.Selector)
		if err == nil && total > 0 && ready == total {
			res.After = live
			res.Skipped = true
			return res
		}
	}

	if def.CRDSuffix != "" {
		if err := o.mitigateCRDAnnotations(ctx, def); err != nil {
			o.warnf("addon %s: annotation mitigation failed, apply may hit the write-size limit: %v", def.Name, err)
		}
	}

	if err := o.apply(ctx, def, requested, target); err != nil {
		res.Err = err
		return res
	}

	if err := o.Cluster.WaitForPodsReady(ctx, def.Namespace, def.Selector, o.readyTimeout()); err != nil {
		o.warnf("addon %s: not ready after apply: %v", def.Name, err)
	}

	after, err := o.Cluster.ImageTag(ctx, def.Namespace, def.Selector, def.Container)
	if err != nil {
		o.warnf("addon %s: post-apply version query failed: %v", def.Name, err)
	}
	res.After = after
	return res
}

func (o *Orchestrator) apply(ctx context.Context, def Definition, requested, target string) error {
	if def.Helm != nil {
		// An explicit request names the chart version; otherwise the
		// pinned chart version, falling back to the target for charts
		// versioned in lockstep with their image.
		chartVersion := requested
		if chartVersion == "" {
			chartVersion = def.Helm.ChartVersion
		}
		if chartVersion == "" {
			chartVersion = target
		}
		return o.Helm.InstallOrUpgrade(o.Kubeconfig, def.Namespace, def.Helm.Release,
			def.Helm.RepoURL, def.Helm.Chart, chartVersion, def.Helm.Values)
	}

	manifest, err := o.fetch(ctx, def.ManifestURL(target))
	if err != nil {
		return fmt.Errorf("addon %s: %w", def.Name, err)
	}
	return o.Cluster.ApplyManifest(ctx, manifest, o.Cluster.SupportsServerSideApply())
}

// mitigateCRDAnnotations strips the last-applied annotation from the
// addon's CRDs when it has grown past the configured limit; left in place
// it makes the next client-side apply fail outright.
func (o *Orchestrator) mitigateCRDAnnotations(ctx context.Context, def Definition) error {
	names, err := o.Cluster.CRDNamesBySuffix(ctx, def.CRDSuffix)
	if err != nil {
		return err
	}
	for _, crd := range names {
		size, err := o.Cluster.CRDAnnotationSize(ctx, crd, lastAppliedAnnotation)
		if err != nil {
			return err
		}
		if size <= o.annotationLimit() {
			continue
		}
		o.warnf("addon %s: CRD %s carries a %d byte last-applied annotation, stripping it", def.Name, crd, size)
		if err := o.Cluster.StripCRDAnnotation(ctx, crd, lastAppliedAnnotation); err != nil {
			return err
		}
	}
	return nil
}

// UpgradeAll upgrades every supported addon, isolating failures: each
// addon's result stands on its own and the run always reports all of them.
func (o *Orchestrator) UpgradeAll(ctx context.Context, requested string) []Result {
	results := make([]Result, 0, len(Names()))
	for _, name := range Names() {
		results = append(results, o.Upgrade(ctx, name, requested))
	}
	return results
}
