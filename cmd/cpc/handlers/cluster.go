package handlers

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/proxcluster/cpc/internal/adapters/kube"
)

// lazyCluster defers building the control-plane client until a call needs
// it. Bootstrap starts before any credentials exist: the entry guard must
// read "no cluster" instead of failing, and the first real API call after
// control-plane init pulls the admin credentials on demand.
type lazyCluster struct {
	path string

	// fetch obtains the credentials file when missing. Nil means the
	// file must already exist.
	fetch func(ctx context.Context) error

	mu    sync.Mutex
	inner clusterClient
}

func defaultClusterClient(path string, fetch func(ctx context.Context) error) clusterClient {
	return &lazyCluster{path: path, fetch: fetch}
}

func (l *lazyCluster) ensure(ctx context.Context) (clusterClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner, nil
	}

	if _, err := os.Stat(l.path); err != nil {
		if l.fetch == nil {
			return nil, fmt.Errorf("no cluster credentials at %s (run get-credentials first)", l.path)
		}
		if err := l.fetch(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch cluster credentials: %w", err)
		}
	}

	client, err := kube.NewClient(l.path)
	if err != nil {
		return nil, err
	}
	l.inner = client
	return l.inner, nil
}

func (l *lazyCluster) HasControlPlane(ctx context.Context) (bool, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		// No credentials yet means no cluster, not a failure.
		return false, nil
	}
	return client.HasControlPlane(ctx)
}

func (l *lazyCluster) NodeExists(ctx context.Context, name string) (bool, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return false, err
	}
	return client.NodeExists(ctx, name)
}

func (l *lazyCluster) NodeCounts(ctx context.Context) (int, int, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return 0, 0, err
	}
	return client.NodeCounts(ctx)
}

func (l *lazyCluster) PodsReady(ctx context.Context, namespace, selector string) (int, int, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return 0, 0, err
	}
	return client.PodsReady(ctx, namespace, selector)
}

func (l *lazyCluster) ImageTag(ctx context.Context, namespace, selector, container string) (string, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return "", err
	}
	return client.ImageTag(ctx, namespace, selector, container)
}

func (l *lazyCluster) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return false, err
	}
	return client.DeploymentReady(ctx, namespace, name)
}

func (l *lazyCluster) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return false, err
	}
	return client.DaemonSetReady(ctx, namespace, name)
}

func (l *lazyCluster) SupportsServerSideApply() bool {
	client, err := l.ensure(context.Background())
	if err != nil {
		return false
	}
	return client.SupportsServerSideApply()
}

func (l *lazyCluster) ApplyManifest(ctx context.Context, manifest string, serverSide bool) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.ApplyManifest(ctx, manifest, serverSide)
}

func (l *lazyCluster) CRDNamesBySuffix(ctx context.Context, suffix string) ([]string, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return client.CRDNamesBySuffix(ctx, suffix)
}

func (l *lazyCluster) CRDAnnotationSize(ctx context.Context, crdName, annotation string) (int, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return 0, err
	}
	return client.CRDAnnotationSize(ctx, crdName, annotation)
}

func (l *lazyCluster) StripCRDAnnotation(ctx context.Context, crdName, annotation string) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.StripCRDAnnotation(ctx, crdName, annotation)
}

func (l *lazyCluster) WaitForNodeCount(ctx context.Context, want int, timeout time.Duration) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.WaitForNodeCount(ctx, want, timeout)
}

func (l *lazyCluster) WaitForPodsReady(ctx context.Context, namespace, selector string, timeout time.Duration) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.WaitForPodsReady(ctx, namespace, selector, timeout)
}

func (l *lazyCluster) ApproveServingCSRs(ctx context.Context, requestorSubstring string) (int, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return 0, err
	}
	return client.ApproveServingCSRs(ctx, requestorSubstring)
}

func (l *lazyCluster) CreateSmokeDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.CreateSmokeDeployment(ctx, namespace, name, replicas)
}

func (l *lazyCluster) PodHostAddresses(ctx context.Context, namespace, selector string) ([]string, error) {
	client, err := l.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return client.PodHostAddresses(ctx, namespace, selector)
}

func (l *lazyCluster) DeleteDeployment(ctx context.Context, namespace, name string) error {
	client, err := l.ensure(ctx)
	if err != nil {
		return err
	}
	return client.DeleteDeployment(ctx, namespace, name)
}
