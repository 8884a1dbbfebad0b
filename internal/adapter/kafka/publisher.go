package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
)

// GeometryWriter publishes a field-line set.
type GeometryWriter interface {
	PublishGeometry(ctx context.Context, set *fieldlines.Set) error
}

// GeometryPublisher forwards every new field-line set seen on the frame
// stream to a GeometryWriter from its own goroutine. When the writer falls
// behind, newer sets are dropped rather than blocking the tick.
type GeometryPublisher struct {
	writer  GeometryWriter
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration
	queue   chan *fieldlines.Set

	// lastVersion is only touched by ObserveFrame on the tick goroutine.
	lastVersion uint64
}

// NewGeometryPublisher creates a publisher with a small bounded queue.
func NewGeometryPublisher(w GeometryWriter, logger *slog.Logger, metrics *observability.Metrics) *GeometryPublisher {
	return &GeometryPublisher{
		writer:  w,
		logger:  logger,
		metrics: metrics,
		timeout: 10 * time.Second,
		queue:   make(chan *fieldlines.Set, 4),
	}
}

// ObserveFrame implements engine.FrameObserver.
func (p *GeometryPublisher) ObserveFrame(snap *engine.Snapshot, _ engine.TickResult) {
	p.Offer(snap.FieldLines)
}

// Offer queues set if it is newer than the last one offered.
func (p *GeometryPublisher) Offer(set *fieldlines.Set) {
	if set == nil || set.Version == p.lastVersion {
		return
	}
	p.lastVersion = set.Version
	select {
	case p.queue <- set:
	default:
		p.metrics.GeometryDropped.Inc()
		p.logger.Warn("geometry publisher busy, dropping set", "version", set.Version)
	}
}

// Run publishes queued sets until ctx is cancelled.
func (p *GeometryPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case set := <-p.queue:
			pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
			err := p.writer.PublishGeometry(pubCtx, set)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("publish geometry failed", "error", err, "version", set.Version)
				continue
			}
			p.metrics.GeometryPublished.Inc()
		}
	}
}
