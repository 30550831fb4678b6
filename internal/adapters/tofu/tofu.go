// Package tofu drives the declarative infrastructure provisioner through
// its CLI: workspace-scoped state selection, apply with override variables,
// JSON output queries, and destroy.
package tofu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/adapters/cmdexec"
	"github.com/proxcluster/cpc/internal/util/retry"
)

// Client invokes the provisioner binary in a fixed working directory.
type Client struct {
	Binary string
	Dir    string

	runner    cmdexec.Runner
	retryOpts []retry.Option
}

// New returns a client for the given infrastructure directory.
func New(dir string, runner cmdexec.Runner, retryOpts ...retry.Option) *Client {
	if runner == nil {
		runner = cmdexec.Local{}
	}
	if len(retryOpts) == 0 {
		retryOpts = []retry.Option{
			retry.WithMaxAttempts(3),
			retry.WithFixedBackoff(),
		}
	}
	return &Client{
		Binary:    "tofu",
		Dir:       dir,
		runner:    runner,
		retryOpts: append(retryOpts, retry.WithRetryable(adapters.IsTransient)),
	}
}

// Output lines that mean the system is already in the desired state. A
// non-zero exit carrying one of these is not an error.
var alreadyConvergedPatterns = []string{
	"No changes.",
	"already exists",
	"Infrastructure is up-to-date",
}

var transientPatterns = []string{
	"state lock",
	"connection refused",
	"connection reset",
	"timeout while waiting",
	"temporarily unavailable",
	"i/o timeout",
}

// classify maps command failures into the adapter error taxonomy, keeping
// the converged-already case out of the error path entirely.
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
			return adapters.Transient(fmt.Errorf("provisioner: %w: %s", err, strings.TrimSpace(res.Stderr)))
		}
	}
	return adapters.Fatal(fmt.Errorf("provisioner: %w: %s", err, strings.TrimSpace(res.Stderr)))
}

func (c *Client) run(ctx context.Context, args ...string) (cmdexec.Result, error) {
	res, err := c.runner.Run(ctx, c.Dir, nil, c.Binary, args...)
	return res, classify(res, err)
}

// SelectWorkspace switches the provisioner's state partition, creating it
// when it does not exist yet.
func (c *Client) SelectWorkspace(ctx context.Context, name string) error {
	res, err := c.runner.Run(ctx, c.Dir, nil, c.Binary, "workspace", "select", name)
	if err == nil {
		return nil
	}
	if strings.Contains(res.Combined(), "doesn't exist") || strings.Contains(res.Combined(), "does not exist") {
		_, nerr := c.run(ctx, "workspace", "new", name)
		return nerr
	}
	return classify(res, err)
}

// DeleteWorkspace removes a state partition. The partition must not be the
// selected one; callers switch away first.
func (c *Client) DeleteWorkspace(ctx context.Context, name string) error {
	_, err := c.run(ctx, "workspace", "delete", name)
	return err
}

func varArgs(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-var", fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return args
}

// Apply converges the workspace toward the declared state with the given
// override variables. Safe to call repeatedly with the same delta; transient
// failures are retried under the client's policy.
func (c *Client) Apply(ctx context.Context, vars map[string]string) error {
	args := append([]string{"apply", "-auto-approve", "-input=false"}, varArgs(vars)...)
	return retry.Do(ctx, func() error {
		_, err := c.run(ctx, args...)
		return err
	}, c.retryOpts...)
}

// DestroyAll tears down everything in the selected state partition.
func (c *Client) DestroyAll(ctx context.Context, vars map[string]string) error {
	args := append([]string{"destroy", "-auto-approve", "-input=false"}, varArgs(vars)...)
	_, err := c.run(ctx, args...)
	return err
}

// WaitForNodeCount polls the snapshot until it reports want nodes.
func (c *Client) WaitForNodeCount(ctx context.Context, want int, opts adapters.WaitOptions) error {
	return adapters.WaitUntil(ctx, fmt.Sprintf("%d provisioned nodes", want), opts,
		func(ctx context.Context) (bool, error) {
			snap, err := c.Query(ctx)
			if err != nil {
				return false, err
			}
			return len(snap.Nodes) == want, nil
		})
}
