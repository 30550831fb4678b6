// Package recovery records workflow checkpoints and wraps mutating steps
// with validation and failure hints. It does not roll anything back:
// every workflow is written so that re-running it whole is the recovery
// path, and this package's job is telling the operator what failed and
// what to check.
package recovery

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Checkpoint is an append-only diagnostic marker recorded during a
// workflow run.
type Checkpoint struct {
	Name string
	Note string
	At   time.Time
}

// Log appends checkpoints to a file and executes recoverable steps.
// The zero value logs to stderr without persisting checkpoints.
type Log struct {
	path string

	// logf receives progress and failure lines. Defaults to log.Printf.
	logf func(format string, args ...any)
}

// NewLog returns a checkpoint log persisting to path.
func NewLog(path string) *Log {
	return &Log{path: path, logf: log.Printf}
}

// SetLogf redirects progress output, mainly for tests.
func (l *Log) SetLogf(logf func(format string, args ...any)) {
	l.logf = logf
}

func (l *Log) printf(format string, args ...any) {
	if l.logf != nil {
		l.logf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// Checkpoint appends a marker to the log. It never fails the caller: a
// write error is reported on the progress log and swallowed.
func (l *Log) Checkpoint(name, note string) {
	l.printf("checkpoint: %s (%s)", name, note)
	if l.path == "" {
		return
	}

	line := fmt.Sprintf("%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), name, note)
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.printf("checkpoint log unavailable: %v", err)
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(line); err != nil {
		l.printf("checkpoint write failed: %v", err)
	}
}

// Entries reads back the recorded checkpoints. A missing log file is an
// empty history.
func (l *Log) Entries() ([]Checkpoint, error) {
	if l.path == "" {
		return nil, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Checkpoint
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		at, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			continue
		}
		entries = append(entries, Checkpoint{Name: parts[1], Note: parts[2], At: at})
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to scan checkpoint log: %w", err)
	}
	return entries, nil
}

// Clear removes the persisted log, tolerating absence.
func (l *Log) Clear() error {
	if l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint log: %w", err)
	}
	return nil
}

// Step is one mutating workflow step. Validate is optional; when set, a
// validation error counts as a step failure. OnFailureHint is the
// human-actionable message logged when the step fails.
type Step struct {
	Name          string
	Action        func(ctx context.Context) error
	Validate      func(ctx context.Context) error
	OnFailureHint string
}

// Execute runs the step's action and validation, checkpointing the
// outcome. It reports success; on failure the hint is logged and the
// caller decides whether the workflow continues.
func (l *Log) Execute(ctx context.Context, step Step) bool {
	start := time.Now()
	l.Checkpoint(step.Name, "started")

	if err := step.Action(ctx); err != nil {
		return l.fail(step, fmt.Errorf("action failed: %w", err))
	}
	if step.Validate != nil {
		if err := step.Validate(ctx); err != nil {
			return l.fail(step, fmt.Errorf("validation failed: %w", err))
		}
	}

	l.Checkpoint(step.Name, fmt.Sprintf("completed in %v", time.Since(start).Round(time.Millisecond)))
	return true
}

func (l *Log) fail(step Step, err error) bool {
	l.Checkpoint(step.Name, "failed")
	l.printf("step %s: %v", step.Name, err)
	if step.OnFailureHint != "" {
		l.printf("step %s: %s", step.Name, step.OnFailureHint)
	}
	return false
}
