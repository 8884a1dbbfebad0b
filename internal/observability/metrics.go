package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swx_engine"

// Metrics holds the Prometheus counters, histograms, and gauges for the engine
// and its telemetry adapters.
type Metrics struct {
	// Animation clock metrics.
	Ticks             prometheus.Counter
	TicksSuspended    prometheus.Counter
	TicksRefused      prometheus.Counter
	TickDuration      prometheus.Histogram
	EngineVisible     prometheus.Gauge
	FieldRegenerated  prometheus.Counter
	ParticleRespawns  prometheus.Counter
	UpdatesStaged     *prometheus.CounterVec // labels: kind={parameters,trajectory}
	UpdatesRejected   *prometheus.CounterVec // labels: kind={parameters,trajectory}
	LiveRenderObjects prometheus.Gauge

	// Telemetry pipeline metrics.
	TelemetryConsumed       prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Provider metrics.
	ProviderRequests    *prometheus.CounterVec   // labels: provider={noaa_plasma,noaa_kp,orbit}, outcome={success,error}
	ProviderAPIDuration *prometheus.HistogramVec // labels: provider
	OrbitCache          *prometheus.CounterVec   // labels: result={hit,miss}

	// Outbound metrics.
	GeometryPublished prometheus.Counter
	GeometryDropped   prometheus.Counter
	StreamClients     prometheus.Gauge
	StreamFramesSent  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	counter := func(name, h string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help(h)})
	}
	gauge := func(name, h string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help(h)})
	}

	return &Metrics{
		Ticks:          counter("ticks_total", "Animation ticks that advanced the scene."),
		TicksSuspended: counter("ticks_suspended_total", "Ticks skipped because the view was hidden."),
		TicksRefused:   counter("ticks_refused_total", "Ticks refused because another tick was still running."),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      help("Time spent in one active tick."),
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033},
		}),
		EngineVisible:    gauge("engine_visible", "1 when the animation clock is active, 0 when suspended."),
		FieldRegenerated: counter("fieldlines_regenerated_total", "Field-line sets rebuilt after a compression change."),
		ParticleRespawns: counter("particle_respawns_total", "Particles returned to the upstream spawn region."),
		UpdatesStaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_staged_total",
			Help:      help("Updates accepted for the next tick by kind."),
		}, []string{"kind"}),
		UpdatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_rejected_total",
			Help:      help("Malformed updates rejected by kind."),
		}, []string{"kind"}),
		LiveRenderObjects: gauge("live_render_objects", "Undisposed geometries and materials."),

		TelemetryConsumed: counter("telemetry_consumed_total", "Telemetry messages read from Kafka."),
		TransformErrors:   counter("transform_errors_total", "Telemetry messages that failed to decode."),
		PipelineRunning:   gauge("pipeline_running", "1 when the telemetry pipeline is active, 0 when shut down."),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of telemetry messages per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete extract-stage-commit cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),

		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      help("Upstream provider requests by provider and outcome."),
		}, []string{"provider", "outcome"}),
		ProviderAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_api_duration_seconds",
			Help:      help("Upstream provider request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		OrbitCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orbit_cache_total",
			Help:      help("Orbit trajectory cache lookups by result."),
		}, []string{"result"}),

		GeometryPublished: counter("geometry_published_total", "Field-line sets written to the geometry topic."),
		GeometryDropped:   counter("geometry_dropped_total", "Field-line sets dropped because the publisher was busy."),
		StreamClients:     gauge("stream_clients", "Connected websocket frame stream clients."),
		StreamFramesSent:  counter("stream_frames_sent_total", "Frames written to websocket clients."),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Ticks,
		m.TicksSuspended,
		m.TicksRefused,
		m.TickDuration,
		m.EngineVisible,
		m.FieldRegenerated,
		m.ParticleRespawns,
		m.UpdatesStaged,
		m.UpdatesRejected,
		m.LiveRenderObjects,
		m.TelemetryConsumed,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ProviderRequests,
		m.ProviderAPIDuration,
		m.OrbitCache,
		m.GeometryPublished,
		m.GeometryDropped,
		m.StreamClients,
		m.StreamFramesSent,
	}
}
