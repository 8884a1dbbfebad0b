// Package noaa reads live solar wind and geomagnetic telemetry from the
// NOAA Space Weather Prediction Center product feeds.
package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/observability"
)

const (
	plasmaPath = "/products/solar-wind/plasma-1-day.json"
	kpPath     = "/products/noaa-planetary-k-index.json"

	// Column indexes in the product tables. Row 0 is the header.
	plasmaSpeedColumn = 2
	kpColumn          = 1
)

var (
	// ErrNoData is returned when a product table has no data rows.
	ErrNoData = errors.New("product has no data rows")
	// ErrNotNumeric is returned when the latest cell cannot be parsed as a number.
	ErrNotNumeric = errors.New("value is not numeric")
)

// Client fetches SWPC product tables.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a SWPC client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

// FetchSolarWindSpeed returns the most recent bulk solar wind speed in km/s.
func (c *Client) FetchSolarWindSpeed(ctx context.Context) (float64, error) {
	return c.latest(ctx, plasmaPath, plasmaSpeedColumn, "noaa_plasma")
}

// FetchKpIndex returns the most recent planetary K-index.
func (c *Client) FetchKpIndex(ctx context.Context) (float64, error) {
	return c.latest(ctx, kpPath, kpColumn, "noaa_kp")
}

// latest reads column from the last row of a product table.
func (c *Client) latest(ctx context.Context, path string, column int, provider string) (float64, error) {
	start := time.Now()
	v, err := c.fetchLatest(ctx, path, column)
	c.metrics.ProviderAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return 0, err
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()
	return v, nil
}

func (c *Client) fetchLatest(ctx context.Context, path string, column int) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("swpc request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("swpc API error: status %d: %s", resp.StatusCode, body)
	}

	var table [][]any
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(table) < 2 {
		return 0, fmt.Errorf("%s: %w", path, ErrNoData)
	}

	row := table[len(table)-1]
	if column >= len(row) {
		return 0, fmt.Errorf("%s: row has %d columns, want > %d: %w", path, len(row), column, ErrNoData)
	}
	return parseCell(row[column])
}

// parseCell accepts the table's string cells as well as bare numbers.
func parseCell(cell any) (float64, error) {
	switch v := cell.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, cell)
	}
}
