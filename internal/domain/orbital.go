package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidOrbitalParameters is returned when a trajectory request is out of range.
var ErrInvalidOrbitalParameters = errors.New("invalid orbital parameters")

// OrbitalParameters describe the two-body orbit requested from the
// trajectory provider. Field names follow the provider's JSON contract.
type OrbitalParameters struct {
	SemiMajorAxisKm float64 `json:"semi_major_axis"`
	Eccentricity    float64 `json:"eccentricity"`
	InclinationDeg  float64 `json:"inclination"`
	SimulationTimeS float64 `json:"simulation_time"`
	TimeSteps       int     `json:"time_steps"`
}

// DefaultOrbitalParameters returns the request used when none is given.
func DefaultOrbitalParameters() OrbitalParameters {
	return OrbitalParameters{
		SemiMajorAxisKm: 8000,
		Eccentricity:    0.1,
		InclinationDeg:  30,
		SimulationTimeS: 10000,
		TimeSteps:       1000,
	}
}

// Validate enforces the ranges offered by the trajectory form:
// semi-major axis 6500-20000 km, eccentricity 0-0.9, inclination 0-90 degrees.
func (p OrbitalParameters) Validate() error {
	switch {
	case !isFinite(p.SemiMajorAxisKm) || p.SemiMajorAxisKm < 6500 || p.SemiMajorAxisKm > 20000:
		return fmt.Errorf("%w: semi_major_axis %v", ErrInvalidOrbitalParameters, p.SemiMajorAxisKm)
	case !isFinite(p.Eccentricity) || p.Eccentricity < 0 || p.Eccentricity > 0.9:
		return fmt.Errorf("%w: eccentricity %v", ErrInvalidOrbitalParameters, p.Eccentricity)
	case !isFinite(p.InclinationDeg) || p.InclinationDeg < 0 || p.InclinationDeg > 90:
		return fmt.Errorf("%w: inclination %v", ErrInvalidOrbitalParameters, p.InclinationDeg)
	case !isFinite(p.SimulationTimeS) || p.SimulationTimeS <= 0:
		return fmt.Errorf("%w: simulation_time %v", ErrInvalidOrbitalParameters, p.SimulationTimeS)
	case p.TimeSteps < 2 || p.TimeSteps > 10000:
		return fmt.Errorf("%w: time_steps %d", ErrInvalidOrbitalParameters, p.TimeSteps)
	}
	return nil
}

// CacheKey is a stable string identity for the request.
func (p OrbitalParameters) CacheKey() string {
	return fmt.Sprintf("orbit:%.3f|%.4f|%.3f|%.1f|%d",
		p.SemiMajorAxisKm, p.Eccentricity, p.InclinationDeg, p.SimulationTimeS, p.TimeSteps)
}
