// Package scheduler provides the serialized tick loop shared by the sweeper,
// dispatcher, and digest workers. Each worker wraps its work in a TickFunc;
// the runner guarantees ticks never overlap and that Stop waits for any
// in-flight tick to finish.
package scheduler

import (
	"context"
	"sync"
	"time"

	"talentsphere/internal/types"
)

// TickFunc is one unit of scheduled work. Errors are logged, not fatal; the
// next tick still fires.
type TickFunc func(ctx context.Context) error

// Runner invokes a TickFunc on a fixed interval. The first tick fires
// immediately on Start.
type Runner struct {
	name     string
	interval time.Duration
	tick     TickFunc
	logger   types.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRunner creates a Runner.
func NewRunner(name string, interval time.Duration, tick TickFunc, logger types.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// Start launches the tick loop. A second Start while running is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx)
	r.logger.Info("scheduler started", "name", r.name, "interval", r.interval.String())
}

// Stop cancels the loop and blocks until the in-flight tick, if any, has
// finished. Safe to call when not running.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.logger.Info("scheduler stopped", "name", r.name)
}

// IsRunning reports whether the loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.runTick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Runner) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Cancellation (Stop or the process signal context) only stops the next
	// tick from starting; the tick already underway keeps a live context so
	// it can finish its current item instead of aborting mid-write.
	tickCtx := context.WithoutCancel(ctx)
	start := time.Now()
	if err := r.tick(tickCtx); err != nil {
		r.logger.Error("tick failed",
			"name", r.name,
			"duration", time.Since(start).String(),
			"error", err.Error(),
		)
		return
	}
	r.logger.Info("tick complete", "name", r.name, "duration", time.Since(start).String())
}
