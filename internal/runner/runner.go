// Package runner supervises the gateway's long-lived task table (spec.md
// §5: the Surface Driver's input loop, the Router's inbound/feedback
// loops, one pair of tasks per driver, the diagnostics HTTP server) with
// golang.org/x/sync/errgroup, and performs their ordered teardown once any
// one of them exits.
//
// Grounded in the teacher's pkg/controlplane/runtime/lifecycle.Service:
// a single coordinator that starts every component, blocks until shutdown
// is triggered by any one of them, then tears everything down in a fixed
// order within a bounded timeout. errgroup replaces the teacher's
// hand-rolled channel-based wait, since the pack's own driver dependency
// surface (golang.org/x/sync) already supplies it.
package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/juliencr/xtouch-gw/internal/logger"
)

// DefaultShutdownTimeout bounds how long Stop funcs collectively get to
// tear down once Run decides to return, matching the teacher's
// lifecycle.DefaultShutdownTimeout.
const DefaultShutdownTimeout = 10 * time.Second

// Task is one long-lived unit of work the Runner supervises. Run must
// block until ctx is cancelled or the task fails on its own; it must not
// return nil just because some unrelated setup finished. Stop, if
// non-nil, performs whatever teardown the task needs and is always called
// with a bounded-timeout context, regardless of why Run returned.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	Stop func(ctx context.Context) error
}

// Runner holds a fixed table of Tasks, started together and torn down
// together.
type Runner struct {
	shutdownTimeout time.Duration
	tasks           []Task
}

// New returns a Runner whose teardown phase is bounded by shutdownTimeout
// (DefaultShutdownTimeout if zero or negative).
func New(shutdownTimeout time.Duration) *Runner {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Runner{shutdownTimeout: shutdownTimeout}
}

// Add registers a task. Must be called before Run; Add after Run has
// started has no effect on the in-flight run.
func (r *Runner) Add(t Task) {
	r.tasks = append(r.tasks, t)
}

// Run starts every registered task under a shared errgroup derived from
// ctx. As soon as any task's Run returns (with or without an error, or
// because ctx itself was cancelled), every other task observes a
// cancelled context and is expected to return promptly. Run then calls
// every registered Stop, in reverse registration order so a task's
// dependencies outlive it during teardown, and returns the first non-nil
// error any task's Run produced.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	gctx, cancelAll := context.WithCancel(gctx)
	defer cancelAll()
	for _, task := range r.tasks {
		task := task
		g.Go(func() error {
			err := task.Run(gctx)
			cancelAll()
			if err != nil {
				logger.Error("task exited with error", "task", task.Name, "error", err)
			} else {
				logger.Debug("task exited", "task", task.Name)
			}
			return err
		})
	}

	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	for i := len(r.tasks) - 1; i >= 0; i-- {
		t := r.tasks[i]
		if t.Stop == nil {
			continue
		}
		if err := t.Stop(stopCtx); err != nil {
			logger.Warn("task stop failed", "task", t.Name, "error", err)
		}
	}

	return runErr
}
