// Package async provides utilities for short-lived groups of named tasks.
//
// This package contains generic helpers for running independent operations
// concurrently and for the monitor pattern used during bootstrap, where an
// unbounded observation task runs alongside a bounded group and is cancelled
// once the group finishes.
package async

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunGroup executes the tasks concurrently and waits for all of them.
// The first failure cancels the remaining tasks and is returned wrapped
// with the task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "base-packages", Func: installBase},
//	    {Name: "runtime-packages", Func: installRuntime},
//	}
//	if err := async.RunGroup(ctx, tasks); err != nil {
//	    return err
//	}
func RunGroup(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			if err := task.Func(gctx); err != nil {
				return fmt.Errorf("task %s: %w", task.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// RunWithMonitor executes the tasks as a group while an unbounded monitor
// task runs alongside them. The monitor is cancelled as soon as the group
// finishes; its cancellation is not treated as a failure.
func RunWithMonitor(ctx context.Context, tasks []Task, monitor Task) error {
	monCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := monitor.Func(monCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[%s] monitor stopped: %v", monitor.Name, err)
		}
	}()

	err := RunGroup(ctx, tasks)
	cancelMonitor()
	<-done

	return err
}
