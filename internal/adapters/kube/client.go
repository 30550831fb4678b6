// Package kube is the cluster control-plane adapter: read-only state
// queries, server-side manifest apply, certificate-signing-request approval,
// and bounded wait-for-condition operations.
package kube

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps the typed and dynamic Kubernetes clients.
type Client struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface

	// FieldManager identifies this tool in server-side apply operations.
	FieldManager string
}

// NewClient creates a client from a kubeconfig file.
func NewClient(kubeconfigPath string) (*Client, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return NewFromClients(clientset, dynamicClient), nil
}

// NewFromClients wraps existing client interfaces; tests inject fakes here.
func NewFromClients(clientset kubernetes.Interface, dyn dynamic.Interface) *Client {
	return &Client{
		clientset:    clientset,
		dynamic:      dyn,
		FieldManager: "cpc",
	}
}

// ServerMinorVersion reports the control plane's minor version, for
// feature gates such as server-side apply support.
func (c *Client) ServerMinorVersion() (int, error) {
	info, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return 0, fmt.Errorf("failed to query server version: %w", err)
	}

	minor := 0
	for _, r := range info.Minor {
		if r < '0' || r > '9' {
			break
		}
		minor = minor*10 + int(r-'0')
	}
	if minor == 0 {
		return 0, fmt.Errorf("unparseable server minor version %q", info.Minor)
	}
	return minor, nil
}
