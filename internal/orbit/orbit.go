// Package orbit turns a provider trajectory into a looping satellite path.
package orbit

import (
	"fmt"
	"sync"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
)

// Path is an ordered sequence of satellite positions.
type Path struct {
	Points            []domain.Vec3 `json:"points"`
	EarthRadiusMeters float64       `json:"earth_radius"`
}

// Len returns the number of points.
func (p Path) Len() int {
	return len(p.Points)
}

// Frame is the satellite pose for one tick. LookAt is the next point on
// the path, wrapping to the start after the last point.
type Frame struct {
	Cursor   int         `json:"cursor"`
	Position domain.Vec3 `json:"position"`
	LookAt   domain.Vec3 `json:"look_at"`
}

// BuildPath validates a trajectory and converts it to a path.
// An empty trajectory yields an empty path.
func BuildPath(traj domain.OrbitTrajectory) (Path, error) {
	if err := traj.Validate(); err != nil {
		return Path{}, fmt.Errorf("build path: %w", err)
	}
	n := traj.Len()
	pts := make([]domain.Vec3, n)
	for i := range n {
		pts[i] = domain.Vec3{X: traj.Positions.X[i], Y: traj.Positions.Y[i], Z: traj.Positions.Z[i]}
	}
	return Path{Points: pts, EarthRadiusMeters: traj.EarthRadiusMeters}, nil
}

// Sampler walks a path one point per Step, looping forever.
type Sampler struct {
	mu     sync.Mutex
	path   Path
	cursor int
}

// NewSampler returns a sampler with no path.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Replace swaps in a new trajectory and rewinds to its first point. If the
// trajectory is malformed the current path and cursor are kept.
func (s *Sampler) Replace(traj domain.OrbitTrajectory) error {
	p, err := BuildPath(traj)
	if err != nil {
		return err
	}
	s.Load(p)
	return nil
}

// Load installs an already validated path and rewinds.
func (s *Sampler) Load(p Path) {
	s.mu.Lock()
	s.path = p
	s.cursor = 0
	s.mu.Unlock()
}

// Step returns the frame at the cursor and advances it. ok is false when
// there is no path.
func (s *Sampler) Step() (f Frame, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.path.Len()
	if n == 0 {
		return Frame{}, false
	}
	next := (s.cursor + 1) % n
	f = Frame{
		Cursor:   s.cursor,
		Position: s.path.Points[s.cursor],
		LookAt:   s.path.Points[next],
	}
	s.cursor = next
	return f, true
}

// Cursor returns the index the next Step will emit.
func (s *Sampler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of points in the current path.
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path.Len()
}

// Path returns the current path. The returned slice must not be modified.
func (s *Sampler) Path() Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}
