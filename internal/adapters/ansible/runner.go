package ansible

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/adapters/cmdexec"
	"github.com/proxcluster/cpc/internal/util/retry"
)

// Runner invokes playbooks from a fixed playbook directory.
type Runner struct {
	Binary      string
	PlaybookDir string

	exec      cmdexec.Runner
	retryOpts []retry.Option
}

// NewRunner returns a configuration runner for the given playbook directory.
func NewRunner(playbookDir string, exec cmdexec.Runner, retryOpts ...retry.Option) *Runner {
	if exec == nil {
		exec = cmdexec.Local{}
	}
	if len(retryOpts) == 0 {
		retryOpts = []retry.Option{
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(10 * time.Second),
			retry.WithFixedBackoff(),
		}
	}
	return &Runner{
		Binary:      "ansible-playbook",
		PlaybookDir: playbookDir,
		exec:        exec,
		retryOpts:   append(retryOpts, retry.WithRetryable(adapters.IsTransient)),
	}
}

// Tasks that report these are already converged; the runner's non-zero exit
// is not an error then.
var alreadyConvergedPatterns = []string{
	"already initialized",
	"already joined",
	"already a member of the cluster",
}

var transientPatterns = []string{
	"UNREACHABLE",
	"Connection timed out",
	"Failed to connect to the host via ssh",
	"Temporary failure in name resolution",
}

func classify(res cmdexec.Result, err error) error {
	if err == nil {
		return nil
	}
	combined := res.Combined()
	for _, p := range alreadyConvergedPatterns {
		if strings.Contains(combined, p) {
			return nil
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(combined, p) {
			return adapters.Transient(fmt.Errorf("config runner: %w: %s", err, strings.TrimSpace(res.Stderr)))
		}
	}
	return adapters.Fatal(fmt.Errorf("config runner: %w: %s", err, strings.TrimSpace(res.Stderr)))
}

// writeInventory persists the inventory JSON next to the playbooks for the
// duration of one invocation.
func (r *Runner) writeInventory(inv Inventory) (string, func(), error) {
	data, err := inv.JSON()
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "cpc-inventory-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create inventory file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write inventory file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close inventory file: %w", err)
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// RunOptions shapes one playbook invocation.
type RunOptions struct {
	Playbook  string
	Inventory Inventory
	// ExtraVars are injected as a single JSON --extra-vars argument
	// (version pins, network parameters).
	ExtraVars map[string]string
	// Limit restricts the run to one host, for per-node steps.
	Limit string
}

// RunPlaybook applies a playbook. Transient connection failures are retried
// under the runner's policy; converged-already output is success.
func (r *Runner) RunPlaybook(ctx context.Context, opts RunOptions) error {
	invPath, cleanup, err := r.writeInventory(opts.Inventory)
	if err != nil {
		return err
	}
	defer cleanup()

	args := []string{"-i", invPath, filepath.Join(r.PlaybookDir, opts.Playbook)}
	if len(opts.ExtraVars) > 0 {
		blob, err := json.Marshal(opts.ExtraVars)
		if err != nil {
			return fmt.Errorf("failed to encode extra vars: %w", err)
		}
		args = append(args, "--extra-vars", string(blob))
	}
	if opts.Limit != "" {
		args = append(args, "--limit", opts.Limit)
	}

	return retry.Do(ctx, func() error {
		res, runErr := r.exec.Run(ctx, r.PlaybookDir, nil, r.Binary, args...)
		return classify(res, runErr)
	}, r.retryOpts...)
}

// Ping checks host reachability through the runner's ping module — the
// adapter's read-only query shape. Hosts that are not deployed yet surface
// as a transient error, never a crash.
func (r *Runner) Ping(ctx context.Context, inv Inventory) error {
	invPath, cleanup, err := r.writeInventory(inv)
	if err != nil {
		return err
	}
	defer cleanup()

	res, runErr := r.exec.Run(ctx, r.PlaybookDir, nil, "ansible", "-i", invPath, "all", "-m", "ping")
	return classify(res, runErr)
}

// WaitReachable polls Ping until every host answers.
func (r *Runner) WaitReachable(ctx context.Context, inv Inventory, opts adapters.WaitOptions) error {
	return adapters.WaitUntil(ctx, "hosts reachable", opts, func(ctx context.Context) (bool, error) {
		if err := r.Ping(ctx, inv); err != nil {
			if adapters.IsTransient(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}
