// Package handlers implements command execution for the cpc CLI.
//
// Commands in cmd/cpc/commands parse arguments and delegate here. Each
// handler resolves the active workspace once, wires the three adapters,
// and calls one orchestrator. Constructor variables are injection seams
// for tests.
package handlers

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/adapters/ansible"
	"github.com/proxcluster/cpc/internal/adapters/tofu"
	"github.com/proxcluster/cpc/internal/addons"
	"github.com/proxcluster/cpc/internal/bootstrap"
	"github.com/proxcluster/cpc/internal/platform/ssh"
	"github.com/proxcluster/cpc/internal/status"
	"github.com/proxcluster/cpc/internal/workspace"
)

// Environment overrides for the external tool locations.
const (
	envInfraDir    = "CPC_INFRA_DIR"
	envPlaybookDir = "CPC_PLAYBOOK_DIR"
	envSSHKey      = "CPC_SSH_KEY"
	envSSHUser     = "CPC_SSH_USER"
)

func infraDir() string {
	if dir := os.Getenv(envInfraDir); dir != "" {
		return dir
	}
	return "infra"
}

func playbookDir() string {
	if dir := os.Getenv(envPlaybookDir); dir != "" {
		return dir
	}
	return "playbooks"
}

func sshUser() string {
	if user := os.Getenv(envSSHUser); user != "" {
		return user
	}
	return "ubuntu"
}

func sshKeyPath() string {
	if path := os.Getenv(envSSHKey); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "id_rsa")
}

// infraClient is the provisioner surface the handlers wire.
type infraClient interface {
	SelectWorkspace(ctx context.Context, name string) error
	DeleteWorkspace(ctx context.Context, name string) error
	Apply(ctx context.Context, vars map[string]string) error
	DestroyAll(ctx context.Context, vars map[string]string) error
	Query(ctx context.Context) (*tofu.Snapshot, error)
	WaitForNodeCount(ctx context.Context, want int, opts adapters.WaitOptions) error
}

// configRunner is the configuration-runner surface the handlers wire.
type configRunner interface {
	RunPlaybook(ctx context.Context, opts ansible.RunOptions) error
	WaitReachable(ctx context.Context, inv ansible.Inventory, opts adapters.WaitOptions) error
	Ping(ctx context.Context, inv ansible.Inventory) error
}

// clusterClient is everything the orchestrators need from the
// control-plane adapter.
type clusterClient interface {
	bootstrap.Cluster
	addons.Cluster
	status.Cluster
}

// remoteExecutor runs one command on a remote host.
type remoteExecutor interface {
	Execute(ctx context.Context, command string) (string, error)
	Reachable(ctx context.Context, timeout time.Duration) bool
}

// Injection seams. Tests replace these to run handlers against fakes.
var (
	newStore = workspace.NewStore

	newInfra = func(dir string) infraClient {
		return tofu.New(dir, nil)
	}

	newConfigRunner = func(dir string) configRunner {
		return ansible.NewRunner(dir, nil)
	}

	newClusterClient = defaultClusterClient

	newRemoteExecutor = func(host string) (remoteExecutor, error) {
		client, err := ssh.NewClientFromKeyFile(host, sshUser(), sshKeyPath())
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	newHelm = func() addons.Helm {
		return addons.NewHelmClient()
	}
)

// kubeconfigPath is where a workspace's fetched admin credentials live.
func kubeconfigPath(store *workspace.Store, contextName string) string {
	return filepath.Join(store.BaseDir, "envs", contextName+".kubeconfig")
}

// activeWorkspace resolves the store, the active context name, and its
// loaded workspace.
func activeWorkspace() (*workspace.Store, *workspace.Workspace, error) {
	store, err := newStore()
	if err != nil {
		return nil, nil, err
	}
	name, err := store.ActiveContext()
	if err != nil {
		return nil, nil, err
	}
	ws, err := store.Load(name)
	if err != nil {
		return nil, nil, err
	}
	return store, ws, nil
}
