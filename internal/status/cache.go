package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/proxcluster/cpc/internal/adapters/tofu"
)

// Cache files live in a well-known temporary location and are safe to
// delete at any time; a missing or corrupt file just forces a refresh.

type infraCache struct {
	At    time.Time       `json:"at"`
	Nodes []tofu.NodeInfo `json:"nodes"`
}

type sshCache struct {
	At        time.Time `json:"at"`
	Reachable int       `json:"reachable"`
	Probed    int       `json:"probed"`
}

func (a *Aggregator) infraCachePath() string {
	return filepath.Join(a.cacheDir(), fmt.Sprintf("cpc_infra_%s.json", a.Context))
}

func (a *Aggregator) sshCachePath() string {
	return filepath.Join(a.cacheDir(), fmt.Sprintf("cpc_ssh_%s.json", a.Context))
}

func readCache[T any](path string, out *T) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func writeCache(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	// Best effort: a failed cache write only costs the next caller a
	// refresh.
	_ = os.WriteFile(path, data, 0o600)
}

func (a *Aggregator) cachedSnapshot(ctx context.Context) (*tofu.Snapshot, error) {
	var cached infraCache
	if readCache(a.infraCachePath(), &cached) && a.clock().Sub(cached.At) < InfraCacheTTL {
		return &tofu.Snapshot{Nodes: cached.Nodes}, nil
	}

	snap, err := a.Infra.Query(ctx)
	if err != nil {
		return nil, err
	}
	writeCache(a.infraCachePath(), infraCache{At: a.clock(), Nodes: snap.Nodes})
	return snap, nil
}

func (a *Aggregator) cachedReachability(ctx context.Context, addresses []string) (int, error) {
	var cached sshCache
	if readCache(a.sshCachePath(), &cached) && a.clock().Sub(cached.At) < SSHCacheTTL {
		return cached.Reachable, nil
	}

	reachable := a.probeAll(ctx, addresses)
	writeCache(a.sshCachePath(), sshCache{At: a.clock(), Reachable: reachable, Probed: len(addresses)})
	return reachable, nil
}

// ClearCache removes the workspace's cache files, tolerating absence.
func (a *Aggregator) ClearCache() error {
	for _, path := range []string{a.infraCachePath(), a.sshCachePath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache file %s: %w", path, err)
		}
	}
	return nil
}
