// Package ansible drives the per-host configuration runner: playbooks
// against a JSON inventory with extra-variable injection for version pins.
package ansible

import (
	"encoding/json"
	"fmt"
)

// Host is one inventory entry.
type Host struct {
	Name     string
	Address  string
	Hostname string
}

// Inventory groups hosts into the control_plane and workers groups the
// playbooks expect.
type Inventory struct {
	ControlPlanes []Host
	Workers       []Host
}

// Hosts returns every inventory entry, control planes first.
func (inv Inventory) Hosts() []Host {
	out := make([]Host, 0, len(inv.ControlPlanes)+len(inv.Workers))
	out = append(out, inv.ControlPlanes...)
	out = append(out, inv.Workers...)
	return out
}

type hostVars struct {
	AnsibleHost  string `json:"ansible_host"`
	NodeHostname string `json:"node_hostname,omitempty"`
}

type group struct {
	Hosts map[string]hostVars `json:"hosts"`
}

type inventoryDoc struct {
	All struct {
		Children map[string]group `json:"children"`
	} `json:"all"`
}

// JSON renders the inventory in the structured form the runner consumes
// (JSON is accepted by its YAML inventory plugin).
func (inv Inventory) JSON() ([]byte, error) {
	toGroup := func(hosts []Host) group {
		g := group{Hosts: map[string]hostVars{}}
		for _, h := range hosts {
			g.Hosts[h.Name] = hostVars{AnsibleHost: h.Address, NodeHostname: h.Hostname}
		}
		return g
	}

	var doc inventoryDoc
	doc.All.Children = map[string]group{
		"control_plane": toGroup(inv.ControlPlanes),
		"workers":       toGroup(inv.Workers),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode inventory: %w", err)
	}
	return data, nil
}
