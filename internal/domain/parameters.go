package domain

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultSolarWindSpeedKmS is used when telemetry is unavailable or not numeric.
	DefaultSolarWindSpeedKmS = 400.0

	// MinCompression and MaxCompression bound the magnetosphere compression factor.
	MinCompression = 0.7
	MaxCompression = 1.5

	// MaxKpIndex is the top of the planetary K-index scale.
	MaxKpIndex = 9.0

	referenceSpeedKmS  = 400.0
	compressionSpanKmS = 600.0
	saturationSpeedKmS = 700.0
)

// ErrInvalidParameters is returned when telemetry values are non-finite or out of range.
var ErrInvalidParameters = errors.New("invalid simulation parameters")

// SimulationParameters is the telemetry snapshot every derived quantity is
// computed from. It is replaced wholesale, never edited in place.
type SimulationParameters struct {
	SolarWindSpeedKmS float64 `json:"solar_wind_speed_km_s"`
	KpIndex           float64 `json:"kp_index"`
}

// DefaultParameters returns the quiet-sun fallback state.
func DefaultParameters() SimulationParameters {
	return SimulationParameters{SolarWindSpeedKmS: DefaultSolarWindSpeedKmS}
}

// Validate rejects non-finite values, negative speeds and Kp outside [0, 9].
func (p SimulationParameters) Validate() error {
	if !isFinite(p.SolarWindSpeedKmS) || p.SolarWindSpeedKmS < 0 {
		return fmt.Errorf("%w: solar wind speed %v", ErrInvalidParameters, p.SolarWindSpeedKmS)
	}
	if !isFinite(p.KpIndex) || p.KpIndex < 0 || p.KpIndex > MaxKpIndex {
		return fmt.Errorf("%w: kp index %v", ErrInvalidParameters, p.KpIndex)
	}
	return nil
}

// Compression derives the compression factor for these parameters.
func (p SimulationParameters) Compression() float64 {
	return DeriveCompression(p.SolarWindSpeedKmS)
}

// ParameterPatch carries a partial telemetry update. Nil fields keep the
// previous value when applied.
type ParameterPatch struct {
	SolarWindSpeedKmS *float64 `json:"solar_wind_speed_km_s,omitempty"`
	KpIndex           *float64 `json:"kp_index,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ParameterPatch) Empty() bool {
	return p.SolarWindSpeedKmS == nil && p.KpIndex == nil
}

// Apply returns base with the patch's fields replaced.
func (p ParameterPatch) Apply(base SimulationParameters) SimulationParameters {
	if p.SolarWindSpeedKmS != nil {
		base.SolarWindSpeedKmS = *p.SolarWindSpeedKmS
	}
	if p.KpIndex != nil {
		base.KpIndex = *p.KpIndex
	}
	return base
}

// DeriveCompression maps solar wind speed to a compression factor:
// clamp(1 + (speed-400)/600, 0.7, 1.5). NaN maps to the neutral 1.0.
func DeriveCompression(speedKmS float64) float64 {
	if math.IsNaN(speedKmS) {
		return 1
	}
	c := 1 + (speedKmS-referenceSpeedKmS)/compressionSpanKmS
	return math.Min(MaxCompression, math.Max(MinCompression, c))
}

// NormalizedSpeed maps speed onto [0, 1], saturating at 700 km/s.
func NormalizedSpeed(speedKmS float64) float64 {
	if math.IsNaN(speedKmS) || speedKmS <= 0 {
		return 0
	}
	return math.Min(1, speedKmS/saturationSpeedKmS)
}

// KpLevel is the coarse geomagnetic activity class of a Kp value.
type KpLevel string

const (
	KpQuiet  KpLevel = "quiet"
	KpMinor  KpLevel = "minor"
	KpStrong KpLevel = "strong"
	KpSevere KpLevel = "severe"
)

// ClassifyKp buckets a Kp index: <=3 quiet, <=5 minor, <=7 strong, else severe.
// NaN is treated as quiet.
func ClassifyKp(kp float64) KpLevel {
	switch {
	case math.IsNaN(kp), kp <= 3:
		return KpQuiet
	case kp <= 5:
		return KpMinor
	case kp <= 7:
		return KpStrong
	default:
		return KpSevere
	}
}

// Color is the display colour used for the level on maps and gauges.
func (l KpLevel) Color() string {
	switch l {
	case KpQuiet:
		return "green"
	case KpMinor:
		return "yellow"
	case KpStrong:
		return "orange"
	default:
		return "red"
	}
}

// Description is the human-readable storm label for the level.
func (l KpLevel) Description() string {
	switch l {
	case KpQuiet:
		return "Quiet geomagnetic conditions"
	case KpMinor:
		return "Minor to moderate geomagnetic storm"
	case KpStrong:
		return "Strong geomagnetic storm"
	default:
		return "Severe to extreme geomagnetic storm"
	}
}
