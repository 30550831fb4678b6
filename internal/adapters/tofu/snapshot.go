package tofu

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/proxcluster/cpc/internal/adapters"
	"github.com/proxcluster/cpc/internal/workspace"
)

// NodeInfo is one provisioned VM as reported by the provisioner's outputs.
type NodeInfo struct {
	Name     string
	Role     workspace.Role
	Address  string
	Hostname string
	InfraID  string
}

// Snapshot is the provisioner's view of the workspace. It is the single
// source of truth for which nodes exist; the other two systems are
// reconciled against it.
type Snapshot struct {
	Nodes []NodeInfo
}

// CountByRole returns how many nodes carry the role.
func (s *Snapshot) CountByRole(role workspace.Role) int {
	n := 0
	for _, node := range s.Nodes {
		if node.Role == role {
			n++
		}
	}
	return n
}

// Find returns the node with the given name.
func (s *Snapshot) Find(name string) (NodeInfo, bool) {
	for _, node := range s.Nodes {
		if node.Name == name {
			return node, true
		}
	}
	return NodeInfo{}, false
}

// output is one entry of `output -json`.
type output struct {
	Value json.RawMessage `json:"value"`
}

// Query reads the provisioner outputs for the selected workspace. A state
// with no outputs yet (nothing deployed) yields an empty snapshot, not an
// error.
func (c *Client) Query(ctx context.Context) (*Snapshot, error) {
	res, err := c.runner.Run(ctx, c.Dir, nil, c.Binary, "output", "-json")
	if err != nil {
		if strings.Contains(res.Combined(), "No outputs found") {
			return &Snapshot{}, nil
		}
		return nil, classify(res, err)
	}

	var outputs map[string]output
	if err := json.Unmarshal([]byte(res.Stdout), &outputs); err != nil {
		return nil, adapters.Fatal(fmt.Errorf("provisioner output is not valid JSON: %w", err))
	}
	if len(outputs) == 0 {
		return &Snapshot{}, nil
	}

	ips, err := stringMapOutput(outputs, "k8s_node_ips")
	if err != nil {
		return nil, err
	}
	names, err := stringMapOutput(outputs, "k8s_node_names")
	if err != nil {
		return nil, err
	}
	ids, err := stringMapOutput(outputs, "k8s_node_ids")
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(ips))
	for k := range ips {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap := &Snapshot{}
	for _, key := range keys {
		role, _, ok := workspace.ParseNodeName(key)
		if !ok {
			return nil, adapters.Fatal(fmt.Errorf("provisioner reported unrecognized node key %q", key))
		}
		snap.Nodes = append(snap.Nodes, NodeInfo{
			Name:     key,
			Role:     role,
			Address:  ips[key],
			Hostname: names[key],
			InfraID:  ids[key],
		})
	}
	return snap, nil
}

// stringMapOutput decodes a map-valued output key, tolerating its absence.
func stringMapOutput(outputs map[string]output, key string) (map[string]string, error) {
	raw, ok := outputs[key]
	if !ok || len(raw.Value) == 0 {
		return map[string]string{}, nil
	}

	var m map[string]string
	if err := json.Unmarshal(raw.Value, &m); err != nil {
		// VM identifiers may be emitted as numbers.
		var nm map[string]json.Number
		if nerr := json.Unmarshal(raw.Value, &nm); nerr != nil {
			return nil, adapters.Fatal(fmt.Errorf("output %s: %w", key, err))
		}
		m = make(map[string]string, len(nm))
		for k, v := range nm {
			m[k] = v.String()
		}
	}
	return m, nil
}
