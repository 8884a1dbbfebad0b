package fieldlines

import (
	"log/slog"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/scene"
)

// Generator owns the current field-line Set and swaps it whole when the
// compression factor changes. It is not safe for concurrent use; the engine
// calls it from the tick goroutine only.
type Generator struct {
	tracker *scene.Tracker
	logger  *slog.Logger
	current *Set
	version uint64
}

// NewGenerator creates a generator that registers render resources with tracker.
func NewGenerator(tracker *scene.Tracker, logger *slog.Logger) *Generator {
	return &Generator{tracker: tracker, logger: logger}
}

// Update returns the set for compression, regenerating only when it differs
// from the current one. The previous set is disposed before the new one is
// retained. The second result reports whether a regeneration happened.
func (g *Generator) Update(compression float64) (*Set, bool) {
	c := clampCompression(compression)
	if g.current != nil && g.current.Compression == c {
		return g.current, false
	}

	next := Build(c)
	g.version++
	next.Version = g.version
	next.GeneratedAt = domain.Now()

	if g.current != nil {
		released := g.current.Dispose()
		g.logger.Debug("field lines released", "version", g.current.Version, "resources", released)
	}
	next.acquire(g.tracker)
	g.current = next

	g.logger.Debug("field lines generated", "version", next.Version, "compression", c)
	return next, true
}

// Current returns the retained set, or nil before the first Update.
func (g *Generator) Current() *Set {
	return g.current
}

// Close disposes the retained set. Further calls are no-ops.
func (g *Generator) Close() {
	if g.current == nil {
		return
	}
	g.current.Dispose()
	g.current = nil
}
