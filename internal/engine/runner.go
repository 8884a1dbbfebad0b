package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// FrameObserver receives every snapshot produced by an active tick. It is
// called on the tick goroutine and must not block.
type FrameObserver interface {
	ObserveFrame(snap *Snapshot, res TickResult)
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(snap *Snapshot, res TickResult)

func (f FrameObserverFunc) ObserveFrame(snap *Snapshot, res TickResult) { f(snap, res) }

// Runner drives an Engine from a ticker.
type Runner struct {
	engine    *Engine
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
	observers []FrameObserver
}

// NewRunner creates a runner that ticks e every interval on clock.
func NewRunner(e *Engine, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{engine: e, clock: clock, interval: interval, logger: logger}
}

// Observe registers o. It must be called before Run.
func (r *Runner) Observe(o FrameObserver) {
	r.observers = append(r.observers, o)
}

// Run ticks until ctx is cancelled or the engine is closed. On every exit
// path the ticker is stopped and the engine closed.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.engine.Close()

	r.logger.Info("animation clock started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("animation clock stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			res, err := r.engine.Tick()
			switch {
			case errors.Is(err, ErrClosed):
				r.logger.Info("animation clock stopping", "reason", err)
				return nil
			case err != nil:
				r.logger.Debug("tick skipped", "error", err)
				continue
			case !res.Advanced:
				continue
			}
			snap := r.engine.Snapshot()
			for _, o := range r.observers {
				o.ObserveFrame(snap, res)
			}
		}
	}
}
