package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/config"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		PollingInterval:   3 * time.Second,
		WorkerCount:       2,
		StuckThreshold:    5 * time.Minute,
		SweepInterval:     time.Minute,
		MetricsPort:       "0",
		APIPort:           0,
		APIRateLimit:      100,
		APIRateBurst:      100,
		SealEndpoint:      "http://localhost:9090",
		PriceFeedEndpoint: "http://localhost:9091",
		VenueEndpoint:     "http://localhost:9092",
		PairUniverse:      []string{"SUI/USDC", "ETH/USDC"},
		JournalPath:       filepath.Join(t.TempDir(), "journal.db"),
		LoggerConfig:      config.LoggerConfig{Level: logger.ErrorLevel},
	}
}

func TestNewServiceWiresComponents(t *testing.T) {
	svc, err := NewService(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.journal.Close() }()

	// An ephemeral enclave identity was generated and registered.
	addr, set := svc.registry.EnclaveAddress()
	assert.True(t, set)
	assert.Equal(t, svc.enclave.Address(), addr)

	// The pair universe maps fingerprints back to feed symbols.
	require.Len(t, svc.universe, 2)
	assert.Equal(t, "SUI/USDC", svc.universe[codec.PairFingerprint("SUI/USDC")])
}

func TestNewServiceRejectsBadEnclaveKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnclaveKey = "not-hex"
	_, err := NewService(cfg)
	assert.Error(t, err)
}

func TestNewServiceLoadsConfiguredKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnclaveKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.journal.Close() }()

	addr, set := svc.registry.EnclaveAddress()
	assert.True(t, set)
	assert.Equal(t, svc.enclave.Address(), addr)
}
