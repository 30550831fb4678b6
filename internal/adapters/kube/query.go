package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/proxcluster/cpc/internal/adapters"
)

// ControlPlaneLabel marks control-plane nodes.
const ControlPlaneLabel = "node-role.kubernetes.io/control-plane"

// HasControlPlane probes for an existing control plane. An unreachable or
// not-yet-deployed API answers false, not an error, so the bootstrap entry
// guard can run against a fresh workspace.
func (c *Client) HasControlPlane(ctx context.Context) (bool, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: ControlPlaneLabel,
	})
	if err != nil {
		return false, nil
	}
	return len(nodes.Items) > 0, nil
}

// NodeExists reports whether a node object with the name (or its hostname
// prefix) has joined the cluster.
func (c *Client) NodeExists(ctx context.Context, name string) (bool, error) {
	_, err := c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to query node %s: %w", name, err)
}

// NodeCounts returns the number of control-plane and worker nodes.
func (c *Client) NodeCounts(ctx context.Context) (controlPlanes, workers int, err error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list nodes: %w", err)
	}
	for _, node := range nodes.Items {
		if _, ok := node.Labels[ControlPlaneLabel]; ok {
			controlPlanes++
		} else {
			workers++
		}
	}
	return controlPlanes, workers, nil
}

// Pods returns pods matching a label selector; a missing namespace yields
// an empty list.
func (c *Client) Pods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	podList, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return podList.Items, nil
}

// PodsReady counts matching pods and how many of them are ready.
func (c *Client) PodsReady(ctx context.Context, namespace, labelSelector string) (ready, total int, err error) {
	pods, err := c.Pods(ctx, namespace, labelSelector)
	if err != nil {
		return 0, 0, err
	}
	for _, pod := range pods {
		total++
		if isPodReady(&pod) {
			ready++
		}
	}
	return ready, total, nil
}

// ImageTag returns the image tag of the named container in a representative
// running pod. An empty string means the workload is not installed.
func (c *Client) ImageTag(ctx context.Context, namespace, labelSelector, container string) (string, error) {
	pods, err := c.Pods(ctx, namespace, labelSelector)
	if err != nil {
		return "", err
	}
	for _, pod := range pods {
		for _, ctr := range pod.Spec.Containers {
			if ctr.Name != container {
				continue
			}
			if idx := strings.LastIndex(ctr.Image, ":"); idx >= 0 {
				return strings.TrimPrefix(ctr.Image[idx+1:], "v"), nil
			}
			return "", nil
		}
	}
	return "", nil
}

// DeploymentReady reports whether a deployment exists and has all replicas
// available. Absence is false, not an error.
func (c *Client) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	deployment, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query deployment %s/%s: %w", namespace, name, err)
	}
	return isDeploymentReady(deployment), nil
}

// DaemonSetReady reports whether a daemonset exists with every desired pod
// ready. Absence is false, not an error.
func (c *Client) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query daemonset %s/%s: %w", namespace, name, err)
	}
	return ds.Status.DesiredNumberScheduled > 0 &&
		ds.Status.NumberReady == ds.Status.DesiredNumberScheduled, nil
}

// WaitForPodsReady polls until at least one pod matches the selector and
// every match is ready.
func (c *Client) WaitForPodsReady(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error {
	return adapters.WaitUntil(ctx, fmt.Sprintf("pods %s in %s ready", labelSelector, namespace),
		adapters.WaitOptions{Timeout: timeout, Interval: 5 * time.Second},
		func(ctx context.Context) (bool, error) {
			ready, total, err := c.PodsReady(ctx, namespace, labelSelector)
			if err != nil {
				return false, nil
			}
			return total > 0 && ready == total, nil
		})
}

// WaitForNodeCount polls until the cluster reports the wanted node total.
func (c *Client) WaitForNodeCount(ctx context.Context, want int, timeout time.Duration) error {
	return adapters.WaitUntil(ctx, fmt.Sprintf("%d cluster nodes", want),
		adapters.WaitOptions{Timeout: timeout, Interval: 5 * time.Second},
		func(ctx context.Context) (bool, error) {
			cp, workers, err := c.NodeCounts(ctx)
			if err != nil {
				return false, nil
			}
			return cp+workers == want, nil
		})
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func isDeploymentReady(deployment *appsv1.Deployment) bool {
	if deployment.Spec.Replicas == nil {
		return false
	}
	want := *deployment.Spec.Replicas
	if deployment.Status.UpdatedReplicas != want ||
		deployment.Status.AvailableReplicas != want {
		return false
	}
	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentAvailable && condition.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}
