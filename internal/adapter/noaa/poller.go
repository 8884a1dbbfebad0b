package noaa

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Fetcher reads the latest telemetry values.
type Fetcher interface {
	FetchSolarWindSpeed(ctx context.Context) (float64, error)
	FetchKpIndex(ctx context.Context) (float64, error)
}

// Stager accepts parameter updates for the animation clock.
type Stager interface {
	StagePatch(p domain.ParameterPatch) error
}

// Poller periodically fetches telemetry and stages it. A failed or
// non-numeric speed stages the 400 km/s fallback; a failed Kp leaves the
// previous Kp in place.
type Poller struct {
	fetcher  Fetcher
	stager   Stager
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller that runs every interval on clock.
func NewPoller(f Fetcher, s Stager, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{fetcher: f, stager: s, clock: clock, interval: interval, logger: logger}
}

// Run polls once immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("noaa poller started", "interval", p.interval)
	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("noaa poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("noaa poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Poll performs one fetch-and-stage cycle.
func (p *Poller) Poll(ctx context.Context) error {
	var patch domain.ParameterPatch

	speed, err := p.fetcher.FetchSolarWindSpeed(ctx)
	if err != nil || !validSpeed(speed) {
		p.logger.Warn("solar wind speed unavailable, using fallback",
			"error", err, "solar_wind_speed_km_s", speed, "fallback", domain.DefaultSolarWindSpeedKmS)
		speed = domain.DefaultSolarWindSpeedKmS
	}
	patch.SolarWindSpeedKmS = &speed

	kp, err := p.fetcher.FetchKpIndex(ctx)
	switch {
	case err != nil:
		p.logger.Warn("kp index unavailable, keeping previous value", "error", err)
	case !validKp(kp):
		p.logger.Warn("kp index out of range, keeping previous value", "kp_index", kp)
	default:
		patch.KpIndex = &kp
	}

	if err := p.stager.StagePatch(patch); err != nil {
		return fmt.Errorf("stage noaa telemetry: %w", err)
	}
	p.logger.Debug("noaa telemetry staged", "solar_wind_speed_km_s", speed, "kp_updated", patch.KpIndex != nil)
	return nil
}

func validSpeed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func validKp(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= domain.MaxKpIndex
}
