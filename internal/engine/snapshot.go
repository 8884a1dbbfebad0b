package engine

import (
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/couchcryptid/space-weather-engine/internal/orbit"
	"github.com/couchcryptid/space-weather-engine/internal/particles"
)

// Snapshot is an immutable copy of one frame, safe to share across goroutines.
type Snapshot struct {
	Tick            uint64                      `json:"tick"`
	Parameters      domain.SimulationParameters `json:"parameters"`
	Compression     float64                     `json:"compression"`
	KpLevel         domain.KpLevel              `json:"kp_level"`
	EarthRotation   float64                     `json:"earth_rotation"`
	Particles       particles.Buffer            `json:"particles"`
	Satellite       *orbit.Frame                `json:"satellite,omitempty"`
	OrbitLength     int                         `json:"orbit_length"`
	GeometryVersion uint64                      `json:"geometry_version"`
	TakenAt         time.Time                   `json:"taken_at"`

	// FieldLines is the set current at this frame. It is shared, not copied,
	// and is served separately because of its size.
	FieldLines *fieldlines.Set `json:"-"`
}
