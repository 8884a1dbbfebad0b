package domain

import (
	"errors"
	"fmt"
)

// ErrMismatchedTrajectory is returned when x, y and z arrays differ in length.
var ErrMismatchedTrajectory = errors.New("mismatched trajectory arrays")

// ErrInvalidTrajectory is returned for non-finite coordinates or radius.
var ErrInvalidTrajectory = errors.New("invalid trajectory")

// Positions holds parallel coordinate arrays as produced by the orbit provider.
// Time is optional and only carried through for display.
type Positions struct {
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
	Z    []float64 `json:"z"`
	Time []float64 `json:"time,omitempty"`
}

// OrbitTrajectory is a pre-computed satellite track. It is supplied whole
// and replaces any previous trajectory atomically.
type OrbitTrajectory struct {
	Positions         Positions `json:"positions"`
	EarthRadiusMeters float64   `json:"earth_radius"`
}

// Len returns the number of samples, or -1 when the arrays disagree.
func (t OrbitTrajectory) Len() int {
	n := len(t.Positions.X)
	if len(t.Positions.Y) != n || len(t.Positions.Z) != n {
		return -1
	}
	return n
}

// Validate checks that the coordinate arrays line up and hold finite values.
// An empty trajectory is valid and represents "no satellite".
func (t OrbitTrajectory) Validate() error {
	p := t.Positions
	if len(p.X) != len(p.Y) || len(p.X) != len(p.Z) {
		return fmt.Errorf("%w: x=%d y=%d z=%d", ErrMismatchedTrajectory, len(p.X), len(p.Y), len(p.Z))
	}
	if !isFinite(t.EarthRadiusMeters) || t.EarthRadiusMeters < 0 {
		return fmt.Errorf("%w: earth radius %v", ErrInvalidTrajectory, t.EarthRadiusMeters)
	}
	for i := range p.X {
		if !isFinite(p.X[i]) || !isFinite(p.Y[i]) || !isFinite(p.Z[i]) {
			return fmt.Errorf("%w: non-finite sample at index %d", ErrInvalidTrajectory, i)
		}
	}
	return nil
}
