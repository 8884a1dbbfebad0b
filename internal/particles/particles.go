// Package particles animates the solar wind as a fixed pool of particles
// streaming from the sun (+x) past the magnetopause.
//
// The buffers are allocated once and rewritten in place every step. The
// deflection near the boundary is a radial push away from the x axis
// proportional to penetration depth, not a force integration.
//
// Colour seed and size are set at spawn and left alone by Step, including on
// respawn. The one exception is a wind speed change: SetSpeed repaints every
// live particle in place, the way a fresh spawn at the new speed would, so
// the whole pool shows the current speed within the same tick. Sizes and
// positions are never touched by a speed change.
package particles

import (
	"math"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/scene"
)

const (
	DefaultCapacity = 100
	MinCapacity     = 100
	MaxCapacity     = 200

	spawnX      = 15.0
	spawnDepth  = 5.0
	spawnHeight = 10.0

	baseSizeMin   = 0.05
	baseSizeRange = 0.05

	speedDivisor = 500.0
	driftBase    = 0.1
	driftJitter  = 0.05

	zoneHalfWidth = 5.0
	zoneRadius    = 3.0
	zoneFlare     = 2.0 / 5.0
	pushStrength  = 0.05

	escapeX      = -15.0
	escapeRadius = 20.0
)

// Rand is the uniform random source behind every draw. *math/rand/v2.Rand
// satisfies it.
type Rand interface {
	Float64() float64
}

// Buffer holds particle attributes as flat render-ready arrays:
// Positions and Colors are xyz/rgb triples, Sizes and ColorSeeds one value
// per particle. Version increments whenever positions change.
type Buffer struct {
	Positions  []float32 `json:"positions"`
	Colors     []float32 `json:"colors"`
	Sizes      []float32 `json:"sizes"`
	ColorSeeds []float32 `json:"color_seeds"`
	Version    uint64    `json:"version"`
}

func newBuffer(n int) *Buffer {
	return &Buffer{
		Positions:  make([]float32, n*3),
		Colors:     make([]float32, n*3),
		Sizes:      make([]float32, n),
		ColorSeeds: make([]float32, n),
	}
}

// Len returns the number of particles.
func (b *Buffer) Len() int {
	return len(b.Sizes)
}

// Position returns particle i's position.
func (b *Buffer) Position(i int) domain.Vec3 {
	i3 := i * 3
	return domain.Vec3{
		X: float64(b.Positions[i3]),
		Y: float64(b.Positions[i3+1]),
		Z: float64(b.Positions[i3+2]),
	}
}

// Clone returns a deep copy, for handing a frame to another goroutine.
func (b *Buffer) Clone() Buffer {
	return Buffer{
		Positions:  append([]float32(nil), b.Positions...),
		Colors:     append([]float32(nil), b.Colors...),
		Sizes:      append([]float32(nil), b.Sizes...),
		ColorSeeds: append([]float32(nil), b.ColorSeeds...),
		Version:    b.Version,
	}
}

func (b *Buffer) setPosition(i int, p domain.Vec3) {
	i3 := i * 3
	b.Positions[i3] = float32(p.X)
	b.Positions[i3+1] = float32(p.Y)
	b.Positions[i3+2] = float32(p.Z)
}

// StepStats summarises one simulation step.
type StepStats struct {
	Deflected int
	Respawned int
}

// Simulator owns the particle buffer. It is not safe for concurrent use;
// only the tick goroutine may call Step or SetSpeed.
type Simulator struct {
	buf      *Buffer
	rng      Rand
	speedKmS float64
	handles  []*scene.Handle
}

// NewSimulator allocates a buffer of capacity particles (clamped to
// [MinCapacity, MaxCapacity]) and spawns every particle.
func NewSimulator(capacity int, speedKmS float64, rng Rand, tracker *scene.Tracker) *Simulator {
	capacity = min(MaxCapacity, max(MinCapacity, capacity))

	s := &Simulator{
		buf:      newBuffer(capacity),
		rng:      rng,
		speedKmS: speedKmS,
		handles: []*scene.Handle{
			tracker.Acquire(scene.KindGeometry),
			tracker.Acquire(scene.KindMaterial),
		},
	}
	seed := float32(domain.NormalizedSpeed(speedKmS))
	for i := range capacity {
		s.spawn(i)
		s.buf.Sizes[i] = float32(baseSizeMin + s.uniform(0, baseSizeRange))
		s.paint(i, seed)
	}
	return s
}

// Buffer exposes the live buffer. Callers must treat it as read-only and
// must not retain it across ticks; use Clone for that.
func (s *Simulator) Buffer() *Buffer {
	return s.buf
}

// Speed returns the solar wind speed the simulator is running at.
func (s *Simulator) Speed() float64 {
	return s.speedKmS
}

// SetSpeed changes the wind speed. Colours are rewritten in place for the
// new speed; positions and sizes are kept.
func (s *Simulator) SetSpeed(speedKmS float64) {
	if speedKmS == s.speedKmS {
		return
	}
	s.speedKmS = speedKmS
	seed := float32(domain.NormalizedSpeed(speedKmS))
	for i := range s.buf.Len() {
		s.paint(i, seed)
	}
}

// Place moves particle i to p. It exists for seeding scenarios and tests.
func (s *Simulator) Place(i int, p domain.Vec3) {
	s.buf.setPosition(i, p)
	s.buf.Version++
}

// Step advances every particle once.
func (s *Simulator) Step() StepStats {
	var stats StepStats
	baseSpeed := s.speedKmS / speedDivisor
	pos := s.buf.Positions

	for i := range s.buf.Len() {
		i3 := i * 3
		x := float64(pos[i3]) - baseSpeed*(driftBase+driftJitter*s.rng.Float64())
		y := float64(pos[i3+1])
		z := float64(pos[i3+2])

		distCenter := math.Sqrt(y*y + z*z)
		distOrigin := math.Sqrt(x*x + y*y + z*z)

		if x > -zoneHalfWidth && x < zoneHalfWidth && distCenter < zoneRadius+zoneFlare*math.Abs(x) {
			angle := math.Atan2(z, y)
			depth := zoneRadius - distCenter
			y += pushStrength * math.Cos(angle) * depth
			z += pushStrength * math.Sin(angle) * depth
			stats.Deflected++
		}

		if x < escapeX || distOrigin > escapeRadius {
			s.spawn(i)
			stats.Respawned++
			continue
		}

		pos[i3] = float32(x)
		pos[i3+1] = float32(y)
		pos[i3+2] = float32(z)
	}

	s.buf.Version++
	return stats
}

// Close releases the buffer's render resources. Safe to call repeatedly.
func (s *Simulator) Close() {
	scene.DisposeAll(s.handles)
}

// spawn places particle i upstream of the magnetosphere. Appearance is untouched.
func (s *Simulator) spawn(i int) {
	s.buf.setPosition(i, domain.Vec3{
		X: spawnX + s.uniform(0, spawnDepth),
		Y: s.uniform(-spawnHeight/2, spawnHeight/2),
		Z: s.uniform(-spawnHeight/2, spawnHeight/2),
	})
}

// paint colours particle i from normalized speed: faster wind is redder.
func (s *Simulator) paint(i int, seed float32) {
	i3 := i * 3
	s.buf.ColorSeeds[i] = seed
	s.buf.Colors[i3] = 0.5 + 0.5*seed
	s.buf.Colors[i3+1] = 0.3 * (1 - seed)
	s.buf.Colors[i3+2] = 0.2
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}
