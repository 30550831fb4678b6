// Package main is the entry point for the cpc CLI.
//
// cpc provisions and operates Kubernetes clusters on local VM
// infrastructure. It orchestrates three systems: a declarative
// infrastructure provisioner for the VMs, a configuration runner for node
// setup, and the cluster control-plane API for everything after the
// cluster answers.
//
// Commands: bootstrap, add-node, remove-node, upgrade-addons, status,
// get-credentials, ctx.
//
// For detailed usage information, run:
//
//	cpc --help
package main

import (
	"fmt"
	"os"

	"github.com/proxcluster/cpc/cmd/cpc/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
