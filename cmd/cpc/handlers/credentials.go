package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/proxcluster/cpc/internal/ui"
	"github.com/proxcluster/cpc/internal/workspace"
)

// adminConfCommand reads the admin credentials off a control-plane host.
const adminConfCommand = "sudo cat /etc/kubernetes/admin.conf"

// fetchCredentials pulls the admin kubeconfig from the first control-plane
// host and writes it to the workspace's credentials path.
func fetchCredentials(ctx context.Context, infra infraClient, store *workspace.Store, contextName string) (string, error) {
	snap, err := infra.Query(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query infrastructure: %w", err)
	}

	var address string
	for _, node := range snap.Nodes {
		if node.Role == workspace.RoleControlPlane && node.Address != "" {
			address = node.Address
			break
		}
	}
	if address == "" {
		return "", fmt.Errorf("no control-plane host deployed for context %s; run bootstrap first", contextName)
	}

	executor, err := newRemoteExecutor(address)
	if err != nil {
		return "", err
	}
	out, err := executor.Execute(ctx, adminConfCommand)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials from %s: %w", address, err)
	}

	var kubeconfig struct {
		APIVersion string `json:"apiVersion"`
	}
	if err := yaml.Unmarshal([]byte(out), &kubeconfig); err != nil || kubeconfig.APIVersion == "" {
		return "", fmt.Errorf("credentials from %s do not look like a kubeconfig", address)
	}

	path := kubeconfigPath(store, contextName)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create credentials directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return "", fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write credentials: %w", err)
	}
	return path, nil
}

// GetCredentials fetches the active workspace's admin kubeconfig.
func GetCredentials(ctx context.Context) error {
	store, ws, err := activeWorkspace()
	if err != nil {
		return err
	}

	infra := newInfra(infraDir())
	if err := infra.SelectWorkspace(ctx, ws.Name); err != nil {
		return err
	}

	path, err := fetchCredentials(ctx, infra, store, ws.Name)
	if err != nil {
		return err
	}
	ui.Successf("credentials for %s written to %s", ws.Name, path)
	return nil
}
