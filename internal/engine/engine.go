// Package engine runs the animation clock: it owns the simulation state,
// applies staged telemetry at the start of each active tick and advances
// the field lines, particles and satellite in a fixed order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
	"github.com/couchcryptid/space-weather-engine/internal/orbit"
	"github.com/couchcryptid/space-weather-engine/internal/particles"
	"github.com/couchcryptid/space-weather-engine/internal/scene"
)

// EarthSpinPerTick is the Earth rotation advanced on every active tick, in radians.
const EarthSpinPerTick = 0.001

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
	// ErrTickInProgress is returned when Tick is called while another tick runs.
	ErrTickInProgress = errors.New("tick already in progress")
)

// State is the animation clock state.
type State string

const (
	StateActive    State = "active"
	StateSuspended State = "suspended"
	StateClosed    State = "closed"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	ParticleCount int
	Rand          particles.Rand
	Tracker       *scene.Tracker
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// TickResult reports what one call to Tick did.
type TickResult struct {
	Advanced    bool
	Tick        uint64
	Regenerated bool
	Respawned   int
	Deflected   int
}

// Engine is the animation clock and the state it drives.
type Engine struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	tracker *scene.Tracker

	// tickMu serialises Tick and Close. Tick only ever TryLocks it.
	tickMu sync.Mutex

	// mu guards staged updates, params and state.
	mu            sync.Mutex
	params        domain.SimulationParameters
	pendingParams *domain.SimulationParameters
	pendingPath   *orbit.Path
	state         State

	// Owned by the tick goroutine.
	fields    *fieldlines.Generator
	particles *particles.Simulator
	sampler   *orbit.Sampler
	satellite *orbit.Frame
	rotation  float64
	tick      uint64

	latest atomic.Pointer[Snapshot]
	ready  atomic.Bool
}

// New creates an active engine for the given initial parameters. The
// field lines for the initial compression are generated immediately.
func New(params domain.SimulationParameters, opts Options) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	if opts.Tracker == nil {
		opts.Tracker = scene.NewTracker()
	}
	if opts.ParticleCount == 0 {
		opts.ParticleCount = particles.DefaultCapacity
	}
	if opts.Rand == nil {
		return nil, errors.New("new engine: random source is required")
	}

	e := &Engine{
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracker:   opts.Tracker,
		params:    params,
		state:     StateActive,
		fields:    fieldlines.NewGenerator(opts.Tracker, opts.Logger),
		particles: particles.NewSimulator(opts.ParticleCount, params.SolarWindSpeedKmS, opts.Rand, opts.Tracker),
		sampler:   orbit.NewSampler(),
	}
	e.fields.Update(params.Compression())
	e.metrics.EngineVisible.Set(1)
	e.publish()
	return e, nil
}

// StagePatch merges a partial parameter update onto the most recent staged
// or applied parameters and queues the result for the next active tick.
func (e *Engine) StagePatch(p domain.ParameterPatch) error {
	if p.Empty() {
		e.metrics.UpdatesRejected.WithLabelValues(string(domain.UpdateParameters)).Inc()
		return fmt.Errorf("stage patch: %w", domain.ErrEmptyPatch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.params
	if e.pendingParams != nil {
		base = *e.pendingParams
	}
	return e.stageParamsLocked(p.Apply(base))
}

// StageParameters queues a complete parameter set for the next active tick.
func (e *Engine) StageParameters(p domain.SimulationParameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stageParamsLocked(p)
}

func (e *Engine) stageParamsLocked(p domain.SimulationParameters) error {
	if e.state == StateClosed {
		return ErrClosed
	}
	if err := p.Validate(); err != nil {
		e.metrics.UpdatesRejected.WithLabelValues(string(domain.UpdateParameters)).Inc()
		e.logger.Warn("rejected parameter update", "error", err)
		return fmt.Errorf("stage parameters: %w", err)
	}
	e.pendingParams = &p
	e.metrics.UpdatesStaged.WithLabelValues(string(domain.UpdateParameters)).Inc()
	return nil
}

// StageTrajectory validates a trajectory and queues it to replace the
// current satellite path on the next active tick.
func (e *Engine) StageTrajectory(traj domain.OrbitTrajectory) error {
	path, err := orbit.BuildPath(traj)
	if err != nil {
		e.metrics.UpdatesRejected.WithLabelValues(string(domain.UpdateTrajectory)).Inc()
		e.logger.Warn("rejected trajectory update", "error", err)
		return fmt.Errorf("stage trajectory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return ErrClosed
	}
	e.pendingPath = &path
	e.metrics.UpdatesStaged.WithLabelValues(string(domain.UpdateTrajectory)).Inc()
	return nil
}

// Apply stages a decoded telemetry update.
func (e *Engine) Apply(_ context.Context, u domain.Update) error {
	switch u.Kind {
	case domain.UpdateParameters:
		return e.StagePatch(u.Patch)
	case domain.UpdateTrajectory:
		return e.StageTrajectory(u.Trajectory)
	default:
		return fmt.Errorf("apply update: %w: %q", domain.ErrUnknownUpdateKind, u.Kind)
	}
}

// SetVisible suspends the clock when the view is hidden and resumes it when
// shown. The change takes effect before the next tick.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	next := StateSuspended
	if visible {
		next = StateActive
	}
	if next == e.state {
		return
	}
	e.state = next
	if visible {
		e.metrics.EngineVisible.Set(1)
	} else {
		e.metrics.EngineVisible.Set(0)
	}
	e.logger.Info("animation clock state changed", "state", next)
}

// State returns the current clock state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Parameters returns the parameters applied by the most recent active tick.
func (e *Engine) Parameters() domain.SimulationParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// CheckReadiness returns nil once the engine has completed an active tick
// and is not closed.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if e.State() == StateClosed {
		return ErrClosed
	}
	if !e.ready.Load() {
		return errors.New("engine has not completed a tick yet")
	}
	return nil
}

// Tick advances the scene by one frame. A suspended engine returns a
// result with Advanced false and touches nothing.
func (e *Engine) Tick() (TickResult, error) {
	if !e.tickMu.TryLock() {
		e.metrics.TicksRefused.Inc()
		return TickResult{}, ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	e.mu.Lock()
	switch e.state {
	case StateClosed:
		e.mu.Unlock()
		return TickResult{}, ErrClosed
	case StateSuspended:
		e.mu.Unlock()
		e.metrics.TicksSuspended.Inc()
		return TickResult{}, nil
	}
	pendingParams, pendingPath := e.pendingParams, e.pendingPath
	e.pendingParams, e.pendingPath = nil, nil
	if pendingParams != nil {
		e.params = *pendingParams
	}
	params := e.params
	e.mu.Unlock()

	start := time.Now()
	var res TickResult

	if pendingParams != nil {
		e.particles.SetSpeed(params.SolarWindSpeedKmS)
		if _, regenerated := e.fields.Update(params.Compression()); regenerated {
			res.Regenerated = true
			e.metrics.FieldRegenerated.Inc()
		}
	}
	if pendingPath != nil {
		e.sampler.Load(*pendingPath)
		e.satellite = nil
	}

	stats := e.particles.Step()
	res.Respawned, res.Deflected = stats.Respawned, stats.Deflected

	if f, ok := e.sampler.Step(); ok {
		e.satellite = &f
	}

	e.rotation = math.Mod(e.rotation+EarthSpinPerTick, 2*math.Pi)
	e.tick++
	res.Advanced = true
	res.Tick = e.tick

	e.publish()
	e.ready.Store(true)

	e.metrics.Ticks.Inc()
	e.metrics.ParticleRespawns.Add(float64(stats.Respawned))
	e.metrics.LiveRenderObjects.Set(float64(e.tracker.LiveTotal()))
	e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

// Snapshot returns the frame published by the most recent active tick, or
// the initial frame before any tick. Snapshots are immutable.
func (e *Engine) Snapshot() *Snapshot {
	return e.latest.Load()
}

// Close stops the clock and disposes every render resource. It waits for
// an in-flight tick to finish. Further calls are no-ops.
func (e *Engine) Close() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosed
	e.pendingParams, e.pendingPath = nil, nil
	e.mu.Unlock()

	e.fields.Close()
	e.particles.Close()
	e.metrics.EngineVisible.Set(0)
	e.metrics.LiveRenderObjects.Set(float64(e.tracker.LiveTotal()))
	e.logger.Info("engine closed", "ticks", e.tick, "disposed", e.tracker.Disposed())
}

// publish stores a snapshot of the tick-owned state. Callers hold tickMu.
func (e *Engine) publish() {
	e.mu.Lock()
	params := e.params
	e.mu.Unlock()

	set := e.fields.Current()
	snap := &Snapshot{
		Tick:            e.tick,
		Parameters:      params,
		Compression:     set.Compression,
		KpLevel:         domain.ClassifyKp(params.KpIndex),
		EarthRotation:   e.rotation,
		Particles:       e.particles.Buffer().Clone(),
		OrbitLength:     e.sampler.Len(),
		FieldLines:      set,
		GeometryVersion: set.Version,
		TakenAt:         domain.Now(),
	}
	if e.satellite != nil {
		f := *e.satellite
		snap.Satellite = &f
	}
	e.latest.Store(snap)
}
