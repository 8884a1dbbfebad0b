package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
)

// TelemetryTransformer implements Transformer by decoding the JSON wire
// form of parameter and trajectory messages.
type TelemetryTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a TelemetryTransformer.
func NewTransformer(logger *slog.Logger) *TelemetryTransformer {
	return &TelemetryTransformer{logger: logger}
}

func (t *TelemetryTransformer) Transform(_ context.Context, raw domain.RawTelemetry) (domain.Update, error) {
	u, err := domain.ParseTelemetry(raw)
	if err != nil {
		return domain.Update{}, err
	}
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = domain.Now()
	}
	if u.Kind == domain.UpdateTrajectory {
		t.logger.Debug("trajectory received", "points", u.Trajectory.Len(), "offset", raw.Offset)
	}
	return u, nil
}
