package domain

import "math"

const (
	auroraBaseLatitude  = 67.0
	auroraKpShift       = 2.0
	auroraWobble        = 3.0
	auroraLongitudeStep = 10
)

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AuroralOval is a coarse visibility band for the current Kp index.
type AuroralOval struct {
	KpIndex     float64    `json:"kp_index"`
	Level       KpLevel    `json:"level"`
	Color       string     `json:"color"`
	Description string     `json:"description"`
	North       []GeoPoint `json:"north"`
	South       []GeoPoint `json:"south"`
}

// AuroralOvalFor approximates the oval boundary: it sits at 67 - 2*Kp degrees
// and wobbles by 3*sin(longitude). The southern band mirrors the northern one.
func AuroralOvalFor(kp float64) AuroralOval {
	if math.IsNaN(kp) {
		kp = 0
	}
	kp = math.Min(MaxKpIndex, math.Max(0, kp))

	level := ClassifyKp(kp)
	base := auroraBaseLatitude - kp*auroraKpShift

	n := 360/auroraLongitudeStep + 1
	oval := AuroralOval{
		KpIndex:     kp,
		Level:       level,
		Color:       level.Color(),
		Description: level.Description(),
		North:       make([]GeoPoint, 0, n),
		South:       make([]GeoPoint, 0, n),
	}
	for lng := -180; lng <= 180; lng += auroraLongitudeStep {
		lat := base + auroraWobble*math.Sin(float64(lng)*math.Pi/180)
		oval.North = append(oval.North, GeoPoint{Lat: lat, Lng: float64(lng)})
		oval.South = append(oval.South, GeoPoint{Lat: -lat, Lng: float64(lng)})
	}
	return oval
}
