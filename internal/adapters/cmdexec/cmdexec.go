// Package cmdexec runs external commands for the exec-based adapters.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os/exec"
	"strings"
)

// Result captures the outcome of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined for pattern matching.
func (r Result) Combined() string {
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes a command and returns its captured output. A non-zero exit
// returns both the Result and a non-nil error so callers can inspect output
// before classifying the failure.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (Result, error)
}

// Local runs commands on the local host.
type Local struct{}

// Run executes the command, capturing stdout and stderr separately.
// Failures are logged with the originating command line before being
// returned; classification is left to the calling adapter.
func (Local) Run(ctx context.Context, dir string, env []string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		log.Printf("command failed: %s %s\n%s", name, strings.Join(args, " "), strings.TrimSpace(res.Combined()))
	}

	return res, err
}
