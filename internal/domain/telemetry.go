package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownUpdateKind is returned for telemetry messages with an unrecognised kind.
var ErrUnknownUpdateKind = errors.New("unknown update kind")

// ErrEmptyPatch is returned for parameter messages that carry no values.
var ErrEmptyPatch = errors.New("parameter update carries no values")

// RawTelemetry represents an unprocessed message from the telemetry topic.
type RawTelemetry struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// UpdateKind discriminates telemetry updates.
type UpdateKind string

const (
	UpdateParameters UpdateKind = "parameters"
	UpdateTrajectory UpdateKind = "trajectory"
)

// Update is a decoded telemetry message ready to be staged into the engine.
type Update struct {
	Kind       UpdateKind
	Patch      ParameterPatch
	Trajectory OrbitTrajectory
	ReceivedAt time.Time
}

// telemetryEnvelope is the wire form shared by both update kinds.
type telemetryEnvelope struct {
	Kind              string     `json:"kind"`
	SolarWindSpeedKmS *float64   `json:"solar_wind_speed_km_s"`
	KpIndex           *float64   `json:"kp_index"`
	Positions         *Positions `json:"positions"`
	EarthRadius       float64    `json:"earth_radius"`
}

// ParseTelemetry decodes a raw message into an Update. The kind comes from
// the body, falling back to the "kind" header.
func ParseTelemetry(raw RawTelemetry) (Update, error) {
	var env telemetryEnvelope
	if err := json.Unmarshal(raw.Value, &env); err != nil {
		return Update{}, fmt.Errorf("parse telemetry: %w", err)
	}

	kind := env.Kind
	if kind == "" {
		kind = raw.Headers["kind"]
	}

	u := Update{Kind: UpdateKind(kind), ReceivedAt: raw.Timestamp}
	switch u.Kind {
	case UpdateParameters:
		u.Patch = ParameterPatch{SolarWindSpeedKmS: env.SolarWindSpeedKmS, KpIndex: env.KpIndex}
		if u.Patch.Empty() {
			return Update{}, fmt.Errorf("parse telemetry: %w", ErrEmptyPatch)
		}
	case UpdateTrajectory:
		if env.Positions != nil {
			u.Trajectory.Positions = *env.Positions
		}
		u.Trajectory.EarthRadiusMeters = env.EarthRadius
	default:
		return Update{}, fmt.Errorf("parse telemetry: %w: %q", ErrUnknownUpdateKind, kind)
	}
	return u, nil
}
