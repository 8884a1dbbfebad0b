package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
	"github.com/couchcryptid/space-weather-engine/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawTelemetry
	errs    []error
	calls   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawTelemetry, error) {
	i := int(m.calls.Add(1) - 1)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockSink struct {
	mu      sync.Mutex
	updates []domain.Update
	err     error
}

func (m *mockSink) Apply(_ context.Context, u domain.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, u)
	return nil
}

func (m *mockSink) staged() []domain.Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Update(nil), m.updates...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawTelemetry{{
		rawTelemetry(`{"kind":"parameters","solar_wind_speed_km_s":450,"kp_index":3.3}`),
	}}}
	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), metrics, 50)

	runFor(t, p, 300*time.Millisecond)

	updates := sink.staged()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.UpdateParameters, updates[0].Kind)
	assert.InDelta(t, 450.0, *updates[0].Patch.SolarWindSpeedKmS, 0)
	assert.InDelta(t, 3.3, *updates[0].Patch.KpIndex, 0)
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TelemetryConsumed), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	sink := &mockSink{}
	p := pipeline.New(&mockExtractor{}, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), observability.NewMetricsForTesting(), 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, sink.staged())
	require.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_Run_PreservesOrder(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawTelemetry{
		{
			rawTelemetry(`{"kind":"parameters","solar_wind_speed_km_s":500}`),
			rawTelemetry(`{"kind":"trajectory","positions":{"x":[1],"y":[2],"z":[3]},"earth_radius":6371}`),
		},
		{
			rawTelemetry(`{"kind":"parameters","kp_index":7}`),
		},
	}}
	sink := &mockSink{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), observability.NewMetricsForTesting(), 50)

	runFor(t, p, 300*time.Millisecond)

	var kinds []domain.UpdateKind
	for _, u := range sink.staged() {
		kinds = append(kinds, u.Kind)
	}
	want := []domain.UpdateKind{domain.UpdateParameters, domain.UpdateTrajectory, domain.UpdateParameters}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("staged order mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_Run_DecodeErrorIsSkippedAndCommitted(t *testing.T) {
	var commits atomic.Int64
	bad := rawTelemetry(`not json`)
	bad.Commit = func(context.Context) error { commits.Add(1); return nil }
	noValues := rawTelemetry(`{"kind":"parameters"}`)
	noValues.Commit = bad.Commit
	unknown := rawTelemetry(`{"kind":"weather"}`)
	unknown.Commit = bad.Commit

	ext := &mockExtractor{batches: [][]domain.RawTelemetry{{bad, noValues, unknown}}}
	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), metrics, 50)

	runFor(t, p, 300*time.Millisecond)

	assert.Empty(t, sink.staged())
	assert.False(t, p.Ready())
	assert.Equal(t, int64(3), commits.Load())
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.TransformErrors), 0)
}

func TestPipeline_Run_RejectedUpdateIsCommitted(t *testing.T) {
	committed := false
	raw := rawTelemetry(`{"kind":"parameters","kp_index":42}`)
	raw.Commit = func(context.Context) error { committed = true; return nil }

	ext := &mockExtractor{batches: [][]domain.RawTelemetry{{raw}}}
	sink := &mockSink{err: domain.ErrInvalidParameters}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), observability.NewMetricsForTesting(), 50)

	runFor(t, p, 300*time.Millisecond)

	assert.True(t, committed)
	assert.False(t, p.Ready())
}

func TestPipeline_Run_CommitsAfterStaging(t *testing.T) {
	sink := &mockSink{}
	var stagedAtCommit int
	raw := rawTelemetry(`{"kind":"parameters","kp_index":1}`)
	raw.Topic = "space-weather-telemetry"
	raw.Commit = func(context.Context) error {
		stagedAtCommit = len(sink.staged())
		return errors.New("broker gone")
	}

	ext := &mockExtractor{batches: [][]domain.RawTelemetry{{raw}}}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), observability.NewMetricsForTesting(), 50)

	runFor(t, p, 300*time.Millisecond)

	assert.Equal(t, 1, stagedAtCommit)
	assert.True(t, p.Ready())
}

func TestPipeline_Run_RecoversAfterExtractError(t *testing.T) {
	ext := &mockExtractor{
		errs:    []error{errors.New("leader not available")},
		batches: [][]domain.RawTelemetry{nil, {rawTelemetry(`{"kind":"parameters","kp_index":2}`)}},
	}
	sink := &mockSink{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), sink, discardLogger(), observability.NewMetricsForTesting(), 50)

	runFor(t, p, time.Second)

	assert.Len(t, sink.staged(), 1)
	assert.GreaterOrEqual(t, ext.calls.Load(), int64(2))
}

func TestTelemetryTransformer_StampsReceivedAt(t *testing.T) {
	fixed := time.Date(2025, time.May, 10, 17, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	tfm := pipeline.NewTransformer(discardLogger())

	u, err := tfm.Transform(context.Background(), rawTelemetry(`{"kind":"parameters","kp_index":4}`))
	require.NoError(t, err)
	assert.Equal(t, fixed, u.ReceivedAt)

	brokerTime := fixed.Add(-time.Minute)
	raw := rawTelemetry(`{"kind":"parameters","kp_index":4}`)
	raw.Timestamp = brokerTime
	u, err = tfm.Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, brokerTime, u.ReceivedAt)
}

func TestTelemetryTransformer_KindFromHeader(t *testing.T) {
	raw := rawTelemetry(`{"positions":{"x":[1,2],"y":[3,4],"z":[5,6]}}`)
	raw.Headers = map[string]string{"kind": "trajectory"}

	u, err := pipeline.NewTransformer(discardLogger()).Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateTrajectory, u.Kind)
	assert.Equal(t, 2, u.Trajectory.Len())
}

func TestPipeline_StagesIntoEngine(t *testing.T) {
	e, err := engine.New(domain.DefaultParameters(), engine.Options{
		Rand:   rand.New(rand.NewPCG(3, 4)),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	defer e.Close()

	ext := &mockExtractor{batches: [][]domain.RawTelemetry{{
		rawTelemetry(`{"kind":"parameters","solar_wind_speed_km_s":1000}`),
		rawTelemetry(`{"kind":"parameters","kp_index":5}`),
		rawTelemetry(`{"kind":"trajectory","positions":{"x":[1,2,3],"y":[1,2],"z":[1,2,3]}}`),
	}}}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), e, discardLogger(), observability.NewMetricsForTesting(), 50)

	runFor(t, p, 300*time.Millisecond)
	// staged only until the clock ticks
	assert.Equal(t, domain.DefaultParameters(), e.Parameters())

	_, err = e.Tick()
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Equal(t, domain.SimulationParameters{SolarWindSpeedKmS: 1000, KpIndex: 5}, snap.Parameters)
	assert.InDelta(t, 1.5, snap.Compression, 0)
	assert.Zero(t, snap.OrbitLength)
}

// --- helpers ---

func rawTelemetry(body string) domain.RawTelemetry {
	return domain.RawTelemetry{
		Key:   []byte("k"),
		Value: []byte(body),
		Topic: "space-weather-telemetry",
	}
}
