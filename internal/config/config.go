package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Animation clock.
	FrameRate     int
	ParticleCount int
	RNGSeed       uint64

	// Kafka telemetry ingestion and geometry publication.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaTelemetryTopic string
	KafkaGeometryTopic  string
	KafkaGroupID        string
	BatchSize           int
	BatchFlushInterval  time.Duration

	// NOAA SWPC polling.
	NOAAEnabled      bool
	NOAABaseURL      string
	NOAAPollInterval time.Duration
	NOAATimeout      time.Duration

	// Orbit trajectory provider. An empty URL disables it.
	OrbitAPIURL     string
	OrbitAPITimeout time.Duration
	OrbitCacheSize  int

	StreamMaxFPS int
}

// TickInterval is the period between animation ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	frameRate, err := parseIntRange("FRAME_RATE", 60, 1, 240)
	if err != nil {
		return nil, err
	}
	particleCount, err := parseIntRange("PARTICLE_COUNT", 100, 100, 200)
	if err != nil {
		return nil, err
	}
	streamFPS, err := parseIntRange("STREAM_MAX_FPS", 30, 1, 240)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseIntRange("ORBIT_CACHE_SIZE", 32, 1, 10000)
	if err != nil {
		return nil, err
	}

	seed, err := strconv.ParseUint(sharedcfg.EnvOrDefault("RNG_SEED", "0"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid RNG_SEED")
	}

	pollInterval, err := parsePositiveDuration("NOAA_POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	noaaTimeout, err := parsePositiveDuration("NOAA_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	orbitTimeout, err := parsePositiveDuration("ORBIT_API_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	orbitURL := sharedcfg.EnvOrDefault("ORBIT_API_URL", "https://satellite-orbit-api.onrender.com/api/satellite-orbit")
	if v, ok := os.LookupEnv("ORBIT_API_URL"); ok && v == "" {
		orbitURL = ""
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FrameRate:     frameRate,
		ParticleCount: particleCount,
		RNGSeed:       seed,

		KafkaEnabled:        parseBool("KAFKA_ENABLED", true),
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "space-weather-telemetry"),
		KafkaGeometryTopic:  sharedcfg.EnvOrDefault("KAFKA_GEOMETRY_TOPIC", "magnetosphere-geometry"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "space-weather-engine"),
		BatchSize:           batchSize,
		BatchFlushInterval:  flushInterval,

		NOAAEnabled:      parseBool("NOAA_ENABLED", true),
		NOAABaseURL:      sharedcfg.EnvOrDefault("NOAA_BASE_URL", "https://services.swpc.noaa.gov"),
		NOAAPollInterval: pollInterval,
		NOAATimeout:      noaaTimeout,

		OrbitAPIURL:     orbitURL,
		OrbitAPITimeout: orbitTimeout,
		OrbitCacheSize:  cacheSize,

		StreamMaxFPS: streamFPS,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaTelemetryTopic == "" {
			return nil, errors.New("KAFKA_TELEMETRY_TOPIC is required")
		}
		if cfg.KafkaGeometryTopic == "" {
			return nil, errors.New("KAFKA_GEOMETRY_TOPIC is required")
		}
	}
	if cfg.NOAAEnabled && cfg.NOAABaseURL == "" {
		return nil, errors.New("NOAA_ENABLED is true but NOAA_BASE_URL is not set")
	}

	return cfg, nil
}

func parseIntRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}
