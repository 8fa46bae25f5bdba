package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default trigger evaluation interval in seconds
	DefaultPollingInterval = 3

	// DefaultWorkerCount defines the default number of execution workers
	DefaultWorkerCount = 5

	// DefaultStuckThreshold defines how long a claim may stay unfinalized before recovery
	DefaultStuckThreshold = 5 * time.Minute

	// DefaultSweepInterval defines how often the recovery sweep runs
	DefaultSweepInterval = 60 * time.Second

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultAPIPort defines the default port for the intent API server
	DefaultAPIPort = 8081

	// DefaultAPIRateLimit defines the default API requests per second per client
	DefaultAPIRateLimit = 20.0

	// DefaultAPIRateBurst defines the default API burst size per client
	DefaultAPIRateBurst = 40

	// DefaultCircuitBreakerEnabled defines whether pair circuit breakers are enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the failures before a pair breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the failure counting window
	DefaultCircuitBreakerWindow = 5 * time.Second

	// DefaultCircuitBreakerReset defines the open-state reset timeout
	DefaultCircuitBreakerReset = 15 * time.Second

	// DefaultSealEndpoint defines the default threshold encryption gateway endpoint
	DefaultSealEndpoint = "http://localhost:9090"

	// DefaultPriceFeedEndpoint defines the default price oracle endpoint
	DefaultPriceFeedEndpoint = "http://localhost:9091"

	// DefaultVenueEndpoint defines the default execution venue endpoint
	DefaultVenueEndpoint = "http://localhost:9092"

	// DefaultPairUniverse defines the trading pairs the trigger monitor can resolve
	DefaultPairUniverse = "SUI/USDC,ETH/USDC,BTC/USDC"

	// DefaultJournalPath defines the default audit journal database path
	DefaultJournalPath = "intent-journal.db"
)

// GetEnvPollingInterval returns the trigger evaluation interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of execution workers from environment variables
func GetEnvWorkerCount() (int, error) {
	workerCount := os.Getenv("WORKER_COUNT")
	if workerCount == "" {
		return DefaultWorkerCount, nil
	}

	count, err := strconv.Atoi(workerCount)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", workerCount)
	}
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvStuckThreshold returns the stuck claim threshold from environment variables
func GetEnvStuckThreshold() (time.Duration, error) {
	threshold := os.Getenv("STUCK_THRESHOLD")
	if threshold == "" {
		return DefaultStuckThreshold, nil
	}

	parsed, err := time.ParseDuration(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid STUCK_THRESHOLD value: %s, must be a valid duration string", threshold)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("STUCK_THRESHOLD must be greater than 0")
	}
	return parsed, nil
}

// GetEnvSweepInterval returns the recovery sweep interval from environment variables
func GetEnvSweepInterval() (time.Duration, error) {
	interval := os.Getenv("SWEEP_INTERVAL")
	if interval == "" {
		return DefaultSweepInterval, nil
	}

	parsed, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid SWEEP_INTERVAL value: %s, must be a valid duration string", interval)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("SWEEP_INTERVAL must be greater than 0")
	}
	return parsed, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvAPIPort returns the intent API server port from environment variables
func GetEnvAPIPort() (int, error) {
	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		return DefaultAPIPort, nil
	}

	port, err := strconv.Atoi(apiPort)
	if err != nil {
		return 0, fmt.Errorf("invalid API_PORT value: %s, must be a valid integer", apiPort)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("API_PORT must be between 1 and 65535")
	}
	return port, nil
}

// GetEnvAPIRateLimit returns the per-client API rate limit from environment variables
func GetEnvAPIRateLimit() (float64, error) {
	rateLimit := os.Getenv("API_RATE_LIMIT")
	if rateLimit == "" {
		return DefaultAPIRateLimit, nil
	}

	rps, err := strconv.ParseFloat(rateLimit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid API_RATE_LIMIT value: %s, must be a number", rateLimit)
	}
	if rps <= 0 {
		return 0, fmt.Errorf("API_RATE_LIMIT must be greater than 0")
	}
	return rps, nil
}

// GetEnvAPIRateBurst returns the per-client API burst size from environment variables
func GetEnvAPIRateBurst() (int, error) {
	burst := os.Getenv("API_RATE_BURST")
	if burst == "" {
		return DefaultAPIRateBurst, nil
	}

	burstInt, err := strconv.Atoi(burst)
	if err != nil {
		return 0, fmt.Errorf("invalid API_RATE_BURST value: %s, must be an integer", burst)
	}
	if burstInt <= 0 {
		return 0, fmt.Errorf("API_RATE_BURST must be greater than 0")
	}
	return burstInt, nil
}

// GetEnvCircuitBreakerEnabled returns whether pair circuit breakers are enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow, nil
	}

	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset, nil
	}

	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvSealEndpoint returns the threshold encryption gateway endpoint from environment variables
func GetEnvSealEndpoint() (string, error) {
	return getEnvEndpoint("SEAL_ENDPOINT", DefaultSealEndpoint)
}

// GetEnvPriceFeedEndpoint returns the price oracle endpoint from environment variables
func GetEnvPriceFeedEndpoint() (string, error) {
	return getEnvEndpoint("PRICE_FEED_ENDPOINT", DefaultPriceFeedEndpoint)
}

// GetEnvVenueEndpoint returns the execution venue endpoint from environment variables
func GetEnvVenueEndpoint() (string, error) {
	return getEnvEndpoint("VENUE_ENDPOINT", DefaultVenueEndpoint)
}

// GetEnvWebhookURL returns the lifecycle notification webhook from environment variables.
// An empty value disables notifications.
func GetEnvWebhookURL() (string, error) {
	webhook := os.Getenv("WEBHOOK_URL")
	if webhook == "" {
		return "", nil
	}

	if _, err := url.ParseRequestURI(webhook); err != nil {
		return "", fmt.Errorf("invalid WEBHOOK_URL value: %s, must be a valid URL", webhook)
	}
	return webhook, nil
}

func getEnvEndpoint(name, fallback string) (string, error) {
	endpoint := os.Getenv(name)
	if endpoint == "" {
		return fallback, nil
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", name, endpoint)
	}
	return endpoint, nil
}

// GetEnvPairUniverse returns the trading pairs the trigger monitor resolves
// fingerprints against, as a comma-separated list from environment variables
func GetEnvPairUniverse() ([]string, error) {
	universe := os.Getenv("PAIR_UNIVERSE")
	if universe == "" {
		universe = DefaultPairUniverse
	}

	var pairs []string
	for _, pair := range strings.Split(universe, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "/") {
			return nil, fmt.Errorf("invalid PAIR_UNIVERSE entry: %s, pairs must look like BASE/QUOTE", pair)
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("PAIR_UNIVERSE must name at least one pair")
	}
	return pairs, nil
}

// GetEnvJournalPath returns the audit journal database path from environment variables
func GetEnvJournalPath() (string, error) {
	journalPath := os.Getenv("JOURNAL_PATH")
	if journalPath == "" {
		return DefaultJournalPath, nil
	}
	return journalPath, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return logger.InfoLevel, nil
	}

	switch level {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}
