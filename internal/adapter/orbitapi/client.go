// Package orbitapi fetches pre-computed satellite trajectories from the
// orbit propagation service.
package orbitapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
)

const provider = "orbit"

// Fetcher returns a trajectory for a set of orbital elements.
type Fetcher interface {
	Fetch(ctx context.Context, params domain.OrbitalParameters) (domain.OrbitTrajectory, error)
}

// Client implements Fetcher against the orbit propagation HTTP API.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an orbit API client posting to url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:     url,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch validates params, requests the trajectory and validates the response.
func (c *Client) Fetch(ctx context.Context, params domain.OrbitalParameters) (domain.OrbitTrajectory, error) {
	if err := params.Validate(); err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("fetch orbit: %w", err)
	}

	start := time.Now()
	traj, err := c.doRequest(ctx, params)
	c.metrics.ProviderAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return domain.OrbitTrajectory{}, err
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("orbit fetched", "points", traj.Len(), "duration", time.Since(start))
	return traj, nil
}

func (c *Client) doRequest(ctx context.Context, params domain.OrbitalParameters) (domain.OrbitTrajectory, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("orbit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.OrbitTrajectory{}, fmt.Errorf("orbit API error: status %d: %s", resp.StatusCode, msg)
	}

	var traj domain.OrbitTrajectory
	if err := json.NewDecoder(resp.Body).Decode(&traj); err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("decode response: %w", err)
	}
	if err := traj.Validate(); err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("orbit response: %w", err)
	}
	return traj, nil
}
