package kube

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CreateSmokeDeployment creates a transient pause-container deployment used
// by bootstrap validation. Replicas spread across nodes via a preferred
// anti-affinity so scheduling lands on distinct addresses when possible.
func (c *Client) CreateSmokeDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	labels := map[string]string{"app": name}
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Affinity: &corev1.Affinity{
						PodAntiAffinity: &corev1.PodAntiAffinity{
							PreferredDuringSchedulingIgnoredDuringExecution: []corev1.WeightedPodAffinityTerm{{
								Weight: 100,
								PodAffinityTerm: corev1.PodAffinityTerm{
									LabelSelector: &metav1.LabelSelector{MatchLabels: labels},
									TopologyKey:   "kubernetes.io/hostname",
								},
							}},
						},
					},
					Containers: []corev1.Container{{
						Name:  "pause",
						Image: "registry.k8s.io/pause:3.10",
					}},
				},
			},
		},
	}

	_, err := c.clientset.AppsV1().Deployments(namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create smoke deployment: %w", err)
	}
	return nil
}

// PodHostAddresses returns the distinct host addresses the matching pods
// are scheduled on.
func (c *Client) PodHostAddresses(ctx context.Context, namespace, labelSelector string) ([]string, error) {
	pods, err := c.Pods(ctx, namespace, labelSelector)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var addrs []string
	for _, pod := range pods {
		addr := pod.Status.HostIP
		if addr == "" {
			addr = pod.Spec.NodeName
		}
		if addr != "" && !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// DeleteDeployment removes a deployment, tolerating absence.
func (c *Client) DeleteDeployment(ctx context.Context, namespace, name string) error {
	err := c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}
