// Package domain models the telemetry that drives the magnetosphere and
// orbit visualizations, and the pure functions derived from it.
//
// # Parameters
//
// Solar wind speed (km/s) and the planetary Kp index arrive from NOAA SWPC
// products or the telemetry topic. They form a [SimulationParameters]
// snapshot that is replaced wholesale; partial updates travel as a
// [ParameterPatch] and are merged onto the latest snapshot before staging.
//
// Compression factor:
//
//	c = clamp(1 + (speed - 400) / 600, 0.7, 1.5)
//
//	400 km/s (typical slow wind) gives c = 1. Faster wind compresses the
//	dayside and stretches the nightside; slower wind does the opposite.
//
// Kp classes (Kp is 0-9, quasi-logarithmic):
//
//	<= 3 quiet | <= 5 minor to moderate storm | <= 7 strong | else severe
//
// # Trajectories
//
// Orbit tracks are computed elsewhere and arrive as three parallel arrays
// x, y, z. Arrays of unequal length are rejected as a whole; an empty track
// is the valid "no satellite" state.
//
// # Auroral oval
//
// A deliberately coarse band at 67 - 2*Kp degrees magnetic latitude with a
// +/-3 degree longitudinal wobble. See [AuroralOvalFor].
package domain
