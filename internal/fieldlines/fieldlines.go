// Package fieldlines builds the stylised magnetosphere geometry: dipole
// field lines bent by solar wind compression, and an ellipsoidal
// magnetopause boundary.
//
// Each of the 16 meridians carries a northern line sampled from the dipole
// relation r = R*cos^2(lat). Lines on the dayside (longitude in (-pi/2, pi/2))
// are shrunk by 1/c, nightside lines stretched by c. Southern lines are the
// northern ones reflected through the equatorial plane (y -> -y).
package fieldlines

import (
	"math"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/scene"
)

const (
	MeridianCount = 16
	PointsPerLine = 51
	LineCount     = MeridianCount * 2

	// EarthRadius is the scene unit.
	EarthRadius = 1.0

	// BoundaryRadius is the magnetopause standoff at compression 1.
	BoundaryRadius = 3.0

	// BoundaryOffset shifts the boundary sunward by compression*BoundaryOffset.
	BoundaryOffset = 0.5

	// BoundarySegments is the tessellation of the boundary surface in both directions.
	BoundarySegments = 32
)

// Hemisphere tags a field line as northern or mirrored southern.
type Hemisphere int

const (
	North Hemisphere = iota
	South
)

func (h Hemisphere) String() string {
	if h == South {
		return "south"
	}
	return "north"
}

// MarshalText renders the hemisphere as "north" or "south".
func (h Hemisphere) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// FieldLine is one immutable polyline.
type FieldLine struct {
	Hemisphere Hemisphere    `json:"hemisphere"`
	Meridian   int           `json:"meridian"`
	Longitude  float64       `json:"longitude"`
	DaySide    bool          `json:"day_side"`
	Points     []domain.Vec3 `json:"points"`
}

// Boundary is the magnetopause surface as a latitude/longitude vertex grid
// of (Segments+1)^2 vertices, rows running from the +y pole to the -y pole.
type Boundary struct {
	Center   domain.Vec3   `json:"center"`
	SemiAxes domain.Vec3   `json:"semi_axes"`
	Segments int           `json:"segments"`
	Vertices []domain.Vec3 `json:"vertices"`
}

// Set is a complete, immutable magnetosphere geometry snapshot. Consumers
// must not modify it; a new Set is built whenever compression changes.
type Set struct {
	Version     uint64      `json:"version"`
	Compression float64     `json:"compression"`
	GeneratedAt time.Time   `json:"generated_at"`
	Lines       []FieldLine `json:"lines"`
	Boundary    Boundary    `json:"boundary"`

	handles []*scene.Handle
}

// Line returns the line for a hemisphere and meridian.
func (s *Set) Line(h Hemisphere, meridian int) FieldLine {
	return s.Lines[meridian*2+int(h)]
}

// Released reports whether the set's render resources have been disposed.
func (s *Set) Released() bool {
	if len(s.handles) == 0 {
		return false
	}
	for _, h := range s.handles {
		if !h.Released() {
			return false
		}
	}
	return true
}

// Dispose releases the set's render resources. Safe to call repeatedly.
func (s *Set) Dispose() int {
	return scene.DisposeAll(s.handles)
}

// acquire registers one geometry per line, one material per meridian
// (shared by its two lines) and a geometry/material pair for the boundary.
func (s *Set) acquire(tr *scene.Tracker) {
	s.handles = make([]*scene.Handle, 0, LineCount+MeridianCount+2)
	for range s.Lines {
		s.handles = append(s.handles, tr.Acquire(scene.KindGeometry))
	}
	for range MeridianCount {
		s.handles = append(s.handles, tr.Acquire(scene.KindMaterial))
	}
	s.handles = append(s.handles,
		tr.Acquire(scene.KindGeometry),
		tr.Acquire(scene.KindMaterial),
	)
}

// Build computes the geometry for a compression factor. It is pure: the
// returned set owns no render resources until a Generator retains it.
func Build(compression float64) *Set {
	c := clampCompression(compression)

	s := &Set{
		Compression: c,
		Lines:       make([]FieldLine, 0, LineCount),
		Boundary:    buildBoundary(c),
	}
	for i := range MeridianCount {
		north := buildNorthLine(i, c)
		s.Lines = append(s.Lines, north, mirror(north))
	}
	return s
}

func buildNorthLine(meridian int, c float64) FieldLine {
	lng := 2 * math.Pi * float64(meridian) / MeridianCount
	day := IsDaySide(lng)

	scale := c
	if day {
		scale = 1 / c
	}

	points := make([]domain.Vec3, PointsPerLine)
	for j := range PointsPerLine {
		t := float64(j) / (PointsPerLine - 1)
		lat := math.Pi/2 - t*math.Pi
		cosLat := math.Cos(lat)
		r := EarthRadius * cosLat * cosLat * scale

		points[j] = domain.Vec3{
			X: r * cosLat * math.Cos(lng),
			Y: r * math.Sin(lat),
			Z: r * cosLat * math.Sin(lng),
		}
	}

	return FieldLine{
		Hemisphere: North,
		Meridian:   meridian,
		Longitude:  lng,
		DaySide:    day,
		Points:     points,
	}
}

func mirror(north FieldLine) FieldLine {
	points := make([]domain.Vec3, len(north.Points))
	for i, p := range north.Points {
		points[i] = domain.Vec3{X: p.X, Y: -p.Y, Z: p.Z}
	}
	south := north
	south.Hemisphere = South
	south.Points = points
	return south
}

func buildBoundary(c float64) Boundary {
	b := Boundary{
		Center:   domain.Vec3{X: c * BoundaryOffset},
		SemiAxes: domain.Vec3{X: BoundaryRadius / c, Y: BoundaryRadius, Z: BoundaryRadius * c},
		Segments: BoundarySegments,
		Vertices: make([]domain.Vec3, 0, (BoundarySegments+1)*(BoundarySegments+1)),
	}
	for i := 0; i <= BoundarySegments; i++ {
		phi := math.Pi * float64(i) / BoundarySegments
		for j := 0; j <= BoundarySegments; j++ {
			lambda := 2 * math.Pi * float64(j) / BoundarySegments
			b.Vertices = append(b.Vertices, domain.Vec3{
				X: b.Center.X + b.SemiAxes.X*math.Sin(phi)*math.Cos(lambda),
				Y: b.Center.Y + b.SemiAxes.Y*math.Cos(phi),
				Z: b.Center.Z + b.SemiAxes.Z*math.Sin(phi)*math.Sin(lambda),
			})
		}
	}
	return b
}

// IsDaySide reports whether a meridian angle lies in (-pi/2, pi/2). The
// angle is tested as generated, in [0, 2pi), so only meridians 0-3 qualify.
func IsDaySide(lng float64) bool {
	return lng > -math.Pi/2 && lng < math.Pi/2
}

func clampCompression(c float64) float64 {
	if math.IsNaN(c) {
		return 1
	}
	return math.Min(domain.MaxCompression, math.Max(domain.MinCompression, c))
}
