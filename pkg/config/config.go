package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
)

// Config holds the configuration for the intent lifecycle engine
type Config struct {
	PollingInterval time.Duration
	WorkerCount     int
	StuckThreshold  time.Duration
	SweepInterval   time.Duration

	MetricsPort  string
	APIPort      int
	APIRateLimit float64
	APIRateBurst int

	// EnclaveKey is the hex-encoded secp256k1 private key of the executor
	// identity. Empty means generate an ephemeral key at startup.
	EnclaveKey string

	SealEndpoint      string
	PriceFeedEndpoint string
	VenueEndpoint     string
	WebhookURL        string

	PairUniverse []string
	JournalPath  string

	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds per-pair circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	pollingInterval, err := GetEnvPollingInterval()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	stuckThreshold, err := GetEnvStuckThreshold()
	if err != nil {
		return nil, err
	}

	sweepInterval, err := GetEnvSweepInterval()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	apiPort, err := GetEnvAPIPort()
	if err != nil {
		return nil, err
	}

	apiRateLimit, err := GetEnvAPIRateLimit()
	if err != nil {
		return nil, err
	}

	apiRateBurst, err := GetEnvAPIRateBurst()
	if err != nil {
		return nil, err
	}

	sealEndpoint, err := GetEnvSealEndpoint()
	if err != nil {
		return nil, err
	}

	priceFeedEndpoint, err := GetEnvPriceFeedEndpoint()
	if err != nil {
		return nil, err
	}

	venueEndpoint, err := GetEnvVenueEndpoint()
	if err != nil {
		return nil, err
	}

	webhookURL, err := GetEnvWebhookURL()
	if err != nil {
		return nil, err
	}

	pairUniverse, err := GetEnvPairUniverse()
	if err != nil {
		return nil, err
	}

	journalPath, err := GetEnvJournalPath()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PollingInterval:   pollingInterval,
		WorkerCount:       workerCount,
		StuckThreshold:    stuckThreshold,
		SweepInterval:     sweepInterval,
		MetricsPort:       metricsPort,
		APIPort:           apiPort,
		APIRateLimit:      apiRateLimit,
		APIRateBurst:      apiRateBurst,
		EnclaveKey:        os.Getenv("ENCLAVE_PRIVATE_KEY"),
		SealEndpoint:      sealEndpoint,
		PriceFeedEndpoint: priceFeedEndpoint,
		VenueEndpoint:     venueEndpoint,
		WebhookURL:        webhookURL,
		PairUniverse:      pairUniverse,
		JournalPath:       journalPath,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig checks cross-field constraints the per-variable helpers
// cannot see.
func validateConfig(cfg *Config) error {
	if cfg.SweepInterval > cfg.StuckThreshold {
		return fmt.Errorf("SWEEP_INTERVAL (%v) must not exceed STUCK_THRESHOLD (%v)", cfg.SweepInterval, cfg.StuckThreshold)
	}
	if cfg.MetricsPort == fmt.Sprintf("%d", cfg.APIPort) {
		return fmt.Errorf("METRICS_PORT and API_PORT must differ")
	}
	return nil
}
