package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/space-weather-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/space-weather-engine/internal/adapter/kafka"
	"github.com/couchcryptid/space-weather-engine/internal/adapter/noaa"
	"github.com/couchcryptid/space-weather-engine/internal/adapter/orbitapi"
	"github.com/couchcryptid/space-weather-engine/internal/adapter/ws"
	"github.com/couchcryptid/space-weather-engine/internal/config"
	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
	"github.com/couchcryptid/space-weather-engine/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	seed := cfg.RNGSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	eng, err := engine.New(domain.DefaultParameters(), engine.Options{
		ParticleCount: cfg.ParticleCount,
		Rand:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	runner := engine.NewRunner(eng, clock, cfg.TickInterval(), logger)

	hub := ws.NewHub(eng, clock, cfg.StreamMaxFPS, logger, metrics)
	runner.Observe(hub)

	// The pipeline only turns ready once telemetry arrives, so it does not gate /readyz.
	ready := httpadapter.AllReady{eng}

	// Kafka telemetry ingestion and geometry publication (feature-flagged via KAFKA_ENABLED).
	var (
		reader    *kafkaadapter.Reader
		writer    *kafkaadapter.Writer
		pipe      *pipeline.Pipeline
		publisher *kafkaadapter.GeometryPublisher
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		pipe = pipeline.New(reader, pipeline.NewTransformer(logger), eng, logger, metrics, cfg.BatchSize)
		publisher = kafkaadapter.NewGeometryPublisher(writer, logger, metrics)
		runner.Observe(publisher)
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "telemetry_topic", cfg.KafkaTelemetryTopic)
	} else {
		logger.Info("kafka disabled")
	}

	// NOAA SWPC polling (feature-flagged via NOAA_ENABLED).
	var poller *noaa.Poller
	if cfg.NOAAEnabled {
		client := noaa.NewClient(cfg.NOAABaseURL, cfg.NOAATimeout, logger, metrics)
		poller = noaa.NewPoller(client, eng, clock, cfg.NOAAPollInterval, logger)
		logger.Info("noaa polling enabled", "base_url", cfg.NOAABaseURL, "interval", cfg.NOAAPollInterval)
	} else {
		logger.Info("noaa polling disabled")
	}

	// Orbit trajectory provider (disabled by an empty ORBIT_API_URL).
	var orbits httpadapter.OrbitFetcher
	if cfg.OrbitAPIURL != "" {
		client := orbitapi.NewClient(cfg.OrbitAPIURL, cfg.OrbitAPITimeout, logger, metrics)
		orbits = orbitapi.NewCachedFetcher(client, cfg.OrbitCacheSize, metrics)
		logger.Info("orbit provider enabled", "url", cfg.OrbitAPIURL, "cache_size", cfg.OrbitCacheSize)
	} else {
		logger.Info("orbit provider disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Engine: eng,
		Ready:  ready,
		Orbits: orbits,
		Stream: hub,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				logger.Error(name+" error", "error", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	spawn("animation clock", runner.Run)
	if pipe != nil {
		spawn("pipeline", pipe.Run)
		spawn("geometry publisher", publisher.Run)
	}
	if poller != nil {
		spawn("noaa poller", poller.Run)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

