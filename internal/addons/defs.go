// Package addons upgrades cluster addons: version resolution, live-version
// queries, idempotency gating, and metadata-safe applies with per-addon
// failure isolation.
package addons

import (
	"fmt"
	"sort"
)

// lastAppliedAnnotation is the annotation grown by client-side applies. On
// the networking plugin's largest CRDs it can cross the API server's
// write-size limit and break the next apply.
const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// HelmSpec describes a helm-packaged addon.
type HelmSpec struct {
	RepoURL      string
	Chart        string
	Release      string
	ChartVersion string
	Values       map[string]any
}

// Definition is one addon the orchestrator knows how to upgrade.
type Definition struct {
	Name           string
	Namespace      string
	Selector       string
	Container      string
	DefaultVersion string

	// ManifestURL renders the raw-manifest download location for a
	// version. Nil for helm-packaged addons.
	ManifestURL func(version string) string

	// Helm is set for helm-packaged addons.
	Helm *HelmSpec

	// CRDSuffix enables the annotation-size mitigation for CRDs in this
	// group before applying.
	CRDSuffix string
}

// builtins are the supported addons. Calico stays a raw manifest so the
// CRD annotation mitigation applies to it; the rest ship as helm charts.
var builtins = []Definition{
	{
		Name:           "calico",
		Namespace:      "kube-system",
		Selector:       "k8s-app=calico-node",
		Container:      "calico-node",
		DefaultVersion: "3.28.2",
		ManifestURL: func(version string) string {
			return fmt.Sprintf("https://raw.githubusercontent.com/projectcalico/calico/v%s/manifests/calico.yaml", version)
		},
		CRDSuffix: "crd.projectcalico.org",
	},
	{
		Name:           "coredns",
		Namespace:      "kube-system",
		Selector:       "k8s-app=kube-dns",
		Container:      "coredns",
		DefaultVersion: "1.11.3",
		Helm: &HelmSpec{
			RepoURL:      "https://coredns.github.io/helm",
			Chart:        "coredns",
			Release:      "coredns",
			ChartVersion: "1.36.1",
			Values: map[string]any{
				"servers": []any{map[string]any{
					"zones": []any{map[string]any{"zone": "."}},
					"port":  53,
					"plugins": []any{
						map[string]any{"name": "errors"},
						map[string]any{"name": "health"},
						map[string]any{"name": "kubernetes", "parameters": "cluster.local in-addr.arpa ip6.arpa", "configBlock": "pods insecure\nfallthrough in-addr.arpa ip6.arpa"},
						map[string]any{"name": "forward", "parameters": ". /etc/resolv.conf"},
						map[string]any{"name": "cache", "parameters": "30"},
						map[string]any{"name": "loop"},
						map[string]any{"name": "reload"},
					},
				}},
			},
		},
	},
	{
		Name:           "metallb",
		Namespace:      "metallb-system",
		Selector:       "app.kubernetes.io/name=metallb",
		Container:      "controller",
		DefaultVersion: "0.14.8",
		Helm: &HelmSpec{
			RepoURL: "https://metallb.github.io/metallb",
			Chart:   "metallb",
			Release: "metallb",
		},
	},
	{
		Name:           "metrics-server",
		Namespace:      "kube-system",
		Selector:       "app.kubernetes.io/name=metrics-server",
		Container:      "metrics-server",
		DefaultVersion: "0.7.2",
		Helm: &HelmSpec{
			RepoURL:      "https://kubernetes-sigs.github.io/metrics-server/",
			Chart:        "metrics-server",
			Release:      "metrics-server",
			ChartVersion: "3.12.2",
			Values:       map[string]any{"args": []any{"--kubelet-insecure-tls"}},
		},
	},
	{
		Name:           "cert-manager",
		Namespace:      "cert-manager",
		Selector:       "app.kubernetes.io/name=cert-manager",
		Container:      "cert-manager-controller",
		DefaultVersion: "1.16.2",
		Helm: &HelmSpec{
			RepoURL: "https://charts.jetstack.io",
			Chart:   "cert-manager",
			Release: "cert-manager",
			Values:  map[string]any{"crds": map[string]any{"enabled": true}},
		},
	},
}

// Lookup returns the definition for an addon name.
func Lookup(name string) (Definition, bool) {
	for _, def := range builtins {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Names returns the supported addon names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for _, def := range builtins {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}
