package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsv1 "k8s.io/api/apps/v1"
	certsv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/proxcluster/cpc/internal/adapters"
)

func newNode(name string, controlPlane bool) *corev1.Node {
	labels := map[string]string{}
	if controlPlane {
		labels[ControlPlaneLabel] = ""
	}
	return &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels}}
}

func newReadyPod(name, namespace string, labels map[string]string, image, container string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: container, Image: image}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestNodeCountsAndControlPlaneProbe(t *testing.T) {
	t.Parallel()

	clientset := fake.NewSimpleClientset(
		newNode("control-plane-1", true),
		newNode("worker-3", false),
		newNode("worker-4", false),
	)
	c := NewFromClients(clientset, nil)

	cp, workers, err := c.NodeCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cp)
	assert.Equal(t, 2, workers)

	has, err := c.HasControlPlane(context.Background())
	require.NoError(t, err)
	assert.True(t, has)

	exists, err := c.NodeExists(context.Background(), "worker-3")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.NodeExists(context.Background(), "worker-9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHasControlPlaneEmptyCluster(t *testing.T) {
	t.Parallel()

	c := NewFromClients(fake.NewSimpleClientset(), nil)
	has, err := c.HasControlPlane(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestImageTag(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"k8s-app": "calico-node"}
	clientset := fake.NewSimpleClientset(
		newReadyPod("calico-node-abc", "kube-system", labels, "docker.io/calico/node:v3.28.2", "calico-node"),
	)
	c := NewFromClients(clientset, nil)

	tag, err := c.ImageTag(context.Background(), "kube-system", "k8s-app=calico-node", "calico-node")
	require.NoError(t, err)
	assert.Equal(t, "3.28.2", tag)

	// Absent workload means not installed, not an error.
	tag, err = c.ImageTag(context.Background(), "kube-system", "k8s-app=missing", "missing")
	require.NoError(t, err)
	assert.Empty(t, tag)
}

func TestPodsReadyCounts(t *testing.T) {
	t.Parallel()

	labels := map[string]string{"app": "demo"}
	notReady := newReadyPod("demo-2", "default", labels, "img:1", "c")
	notReady.Status.Conditions = nil

	clientset := fake.NewSimpleClientset(
		newReadyPod("demo-1", "default", labels, "img:1", "c"),
		notReady,
	)
	c := NewFromClients(clientset, nil)

	ready, total, err := c.PodsReady(context.Background(), "default", "app=demo")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, ready)
}

func TestDeploymentReady(t *testing.T) {
	t.Parallel()

	replicas := int32(2)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "coredns", Namespace: "kube-system"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status: appsv1.DeploymentStatus{
			UpdatedReplicas:   2,
			AvailableReplicas: 2,
			Conditions: []appsv1.DeploymentCondition{
				{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
			},
		},
	}
	c := NewFromClients(fake.NewSimpleClientset(dep), nil)

	ok, err := c.DeploymentReady(context.Background(), "kube-system", "coredns")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeploymentReady(context.Background(), "kube-system", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newCSR(name, signer, username string, approved bool) *certsv1.CertificateSigningRequest {
	csr := &certsv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: certsv1.CertificateSigningRequestSpec{
			SignerName: signer,
			Username:   username,
		},
	}
	if approved {
		csr.Status.Conditions = []certsv1.CertificateSigningRequestCondition{
			{Type: certsv1.CertificateApproved, Status: "True"},
		}
	}
	return csr
}

func TestApproveServingCSRs(t *testing.T) {
	t.Parallel()

	clientset := fake.NewSimpleClientset(
		newCSR("csr-1", kubeletServingSigner, "system:node:worker-3", false),
		newCSR("csr-2", kubeletServingSigner, "system:node:worker-4", true),
		newCSR("csr-3", "kubernetes.io/kube-apiserver-client", "system:node:worker-5", false),
		newCSR("csr-4", kubeletServingSigner, "system:serviceaccount:other", false),
	)
	c := NewFromClients(clientset, nil)

	approved, err := c.ApproveServingCSRs(context.Background(), "system:node:")
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
}

func TestApproveServingCSRsToleratesNonePending(t *testing.T) {
	t.Parallel()

	c := NewFromClients(fake.NewSimpleClientset(), nil)
	approved, err := c.ApproveServingCSRs(context.Background(), "system:node:")
	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestServerMinorVersionGatesApply(t *testing.T) {
	t.Parallel()

	clientset := fake.NewSimpleClientset()
	clientset.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{Major: "1", Minor: "31"}
	c := NewFromClients(clientset, nil)

	minor, err := c.ServerMinorVersion()
	require.NoError(t, err)
	assert.Equal(t, 31, minor)
	assert.True(t, c.SupportsServerSideApply())

	clientset.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{Major: "1", Minor: "16+"}
	assert.False(t, c.SupportsServerSideApply())
}

func configMapGVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
}

func TestApplyManifestCreateThenUpdate(t *testing.T) {
	t.Parallel()

	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), map[schema.GroupVersionResource]string{
		configMapGVR(): "ConfigMapList",
	})
	c := NewFromClients(fake.NewSimpleClientset(), dyn)

	manifest := `
apiVersion: v1
kind: ConfigMap
metadata:
  name: demo
  namespace: kube-system
data:
  key: first
`
	require.NoError(t, c.ApplyManifest(context.Background(), manifest, false))

	// Re-applying with changed data takes the update path.
	manifest2 := `
apiVersion: v1
kind: ConfigMap
metadata:
  name: demo
  namespace: kube-system
data:
  key: second
`
	require.NoError(t, c.ApplyManifest(context.Background(), manifest2, false))

	obj, err := dyn.Resource(configMapGVR()).Namespace("kube-system").Get(context.Background(), "demo", metav1.GetOptions{})
	require.NoError(t, err)
	data, _, err := unstructured.NestedStringMap(obj.Object, "data")
	require.NoError(t, err)
	assert.Equal(t, "second", data["key"])
}

func TestCRDAnnotationLifecycle(t *testing.T) {
	t.Parallel()

	crd := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata": map[string]any{
			"name": "felixconfigurations.crd.projectcalico.org",
			"annotations": map[string]any{
				"kubectl.kubernetes.io/last-applied-configuration": "0123456789",
			},
		},
	}}

	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), map[schema.GroupVersionResource]string{
		crdGVR: "CustomResourceDefinitionList",
	}, crd)
	c := NewFromClients(fake.NewSimpleClientset(), dyn)

	size, err := c.CRDAnnotationSize(context.Background(), "felixconfigurations.crd.projectcalico.org", "kubectl.kubernetes.io/last-applied-configuration")
	require.NoError(t, err)
	assert.Equal(t, 10, size)

	names, err := c.CRDNamesBySuffix(context.Background(), "crd.projectcalico.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"felixconfigurations.crd.projectcalico.org"}, names)

	require.NoError(t, c.StripCRDAnnotation(context.Background(), "felixconfigurations.crd.projectcalico.org", "kubectl.kubernetes.io/last-applied-configuration"))

	size, err = c.CRDAnnotationSize(context.Background(), "felixconfigurations.crd.projectcalico.org", "kubectl.kubernetes.io/last-applied-configuration")
	require.NoError(t, err)
	assert.Zero(t, size)

	// Absent CRD reads as zero.
	size, err = c.CRDAnnotationSize(context.Background(), "missing.crd.projectcalico.org", "anything")
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestWaitForPodsReadyTimesOut(t *testing.T) {
	t.Parallel()

	c := NewFromClients(fake.NewSimpleClientset(), nil)
	err := c.WaitForPodsReady(context.Background(), "kube-system", "k8s-app=calico-node", 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, adapters.IsTimeout(err))
}
