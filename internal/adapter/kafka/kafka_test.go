package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawTelemetry(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("key-1"),
		Value:     []byte(`{"kind":"parameters","kp_index":4}`),
		Topic:     "space-weather-telemetry",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("dscovr")},
		},
	}

	raw := mapMessageToRawTelemetry(msg)

	assert.Equal(t, []byte("key-1"), raw.Key)
	assert.JSONEq(t, `{"kind":"parameters","kp_index":4}`, string(raw.Value))
	assert.Equal(t, "space-weather-telemetry", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "dscovr", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeGeometry(t *testing.T) {
	generated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	set := fieldlines.Build(1.25)
	set.Version = 7
	set.GeneratedAt = generated

	msg, err := serializeGeometry(set)
	require.NoError(t, err)

	assert.Equal(t, []byte("geometry-7"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "compression", msg.Headers[0].Key)
	assert.Equal(t, []byte("1.25"), msg.Headers[0].Value)
	assert.Equal(t, "generated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(generated.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded struct {
		Version     uint64 `json:"version"`
		Compression float64
		Lines       []struct {
			Hemisphere string `json:"hemisphere"`
			Points     []struct{ X, Y, Z float64 }
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uint64(7), decoded.Version)
	assert.InDelta(t, 1.25, decoded.Compression, 0)
	require.Len(t, decoded.Lines, fieldlines.LineCount)
	assert.Equal(t, "north", decoded.Lines[0].Hemisphere)
	assert.Equal(t, "south", decoded.Lines[1].Hemisphere)
	assert.Len(t, decoded.Lines[0].Points, fieldlines.PointsPerLine)
}

type recordingWriter struct {
	mu       sync.Mutex
	calls    int
	versions []uint64
	err      error
}

func (w *recordingWriter) PublishGeometry(_ context.Context, set *fieldlines.Set) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.versions = append(w.versions, set.Version)
	return nil
}

func (w *recordingWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *recordingWriter) published() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.versions...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func versioned(v uint64) *fieldlines.Set {
	return &fieldlines.Set{Version: v}
}

func TestGeometryPublisher_PublishesEachVersionOnce(t *testing.T) {
	w := &recordingWriter{}
	p := NewGeometryPublisher(w, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Offer(versioned(1))
	p.Offer(versioned(1))
	p.Offer(nil)
	p.Offer(versioned(2))

	require.Eventually(t, func() bool { return len(w.published()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []uint64{1, 2}, w.published())
}

func TestGeometryPublisher_DropsWhenBusy(t *testing.T) {
	w := &recordingWriter{}
	metrics := observability.NewMetricsForTesting()
	p := NewGeometryPublisher(w, discardLogger(), metrics)

	// nothing drains the queue
	for v := uint64(1); v <= 10; v++ {
		p.Offer(versioned(v))
	}

	assert.Len(t, p.queue, cap(p.queue))
	assert.InDelta(t, 10-cap(p.queue), testutil.ToFloat64(metrics.GeometryDropped), 0)
}

func TestGeometryPublisher_ContinuesAfterWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("not leader")}
	p := NewGeometryPublisher(w, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Offer(versioned(1))
	require.Eventually(t, func() bool { return w.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	p.Offer(versioned(2))

	require.Eventually(t, func() bool { return len(w.published()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []uint64{2}, w.published())
}
