// Package engine assembles the intent lifecycle service: the registry,
// the trigger monitor, the execution coordinator, the audit journal and
// the HTTP surfaces, wired together from configuration.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/api"
	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/config"
	"github.com/Naveen-6087/sui-tma/pkg/coordinator"
	"github.com/Naveen-6087/sui-tma/pkg/health"
	"github.com/Naveen-6087/sui-tma/pkg/identity"
	"github.com/Naveen-6087/sui-tma/pkg/journal"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/monitor"
	"github.com/Naveen-6087/sui-tma/pkg/notifier"
	"github.com/Naveen-6087/sui-tma/pkg/pricefeed"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
	"github.com/Naveen-6087/sui-tma/pkg/seal"
	"github.com/Naveen-6087/sui-tma/pkg/venue"
)

// Service owns every long-running component of the lifecycle engine.
type Service struct {
	config   *config.Config
	logger   logger.Logger
	registry *registry.Registry
	journal  *journal.Journal
	monitor  *monitor.Monitor
	coord    *coordinator.Coordinator
	notifier *notifier.Notifier
	api      *api.Server
	health   *health.Server
	enclave  *identity.Enclave
	universe map[models.Fingerprint]string
}

// NewService builds the full service graph from configuration. The
// enclave identity is loaded from the configured key, or generated
// fresh when none is provided, and registered with the registry before
// anything else can run.
func NewService(cfg *config.Config) (*Service, error) {
	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	enclave, err := loadEnclave(cfg.EnclaveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load enclave identity: %v", err)
	}

	reg := registry.New(log)
	if err := reg.RegisterEnclave(enclave.Address()); err != nil {
		return nil, fmt.Errorf("failed to register enclave: %v", err)
	}
	log.Info("Enclave identity %s registered", enclave.Address().Hex())

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %v", err)
	}

	universe := make(map[models.Fingerprint]string, len(cfg.PairUniverse))
	for _, pair := range cfg.PairUniverse {
		universe[codec.PairFingerprint(pair)] = pair
	}

	feed := pricefeed.NewClient(cfg.PriceFeedEndpoint, log)
	mon := monitor.New(reg, feed, universe, cfg.PollingInterval, log)

	gateway := seal.NewClient(cfg.SealEndpoint, log)
	v := venue.NewClient(cfg.VenueEndpoint, log)
	coord := coordinator.New(reg, gateway, v, enclave, mon.Candidates(),
		cfg.WorkerCount, cfg.StuckThreshold, cfg.SweepInterval,
		coordinator.BreakerConfig{
			Enabled:      cfg.CircuitBreaker.Enabled,
			Threshold:    cfg.CircuitBreaker.Threshold,
			Window:       cfg.CircuitBreaker.WindowDuration,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		}, log)

	return &Service{
		config:   cfg,
		logger:   log,
		registry: reg,
		journal:  jrnl,
		monitor:  mon,
		coord:    coord,
		notifier: notifier.New(cfg.WebhookURL, log),
		api:      api.New(reg, cfg.APIPort, cfg.APIRateLimit, cfg.APIRateBurst, log),
		health:   health.NewServer(cfg.MetricsPort, reg, coord, enclave.Address(), universe),
		enclave:  enclave,
		universe: universe,
	}, nil
}

func loadEnclave(keyHex string) (*identity.Enclave, error) {
	if keyHex == "" {
		return identity.GenerateEnclave()
	}
	return identity.NewEnclaveFromHex(keyHex)
}

// Start runs every component until the context is cancelled, then waits
// for all of them to drain.
func (s *Service) Start(ctx context.Context) {
	// Health and metrics server
	go s.health.Start()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.api.Start(ctx); err != nil {
			s.logger.ErrorWith(logger.API, "API server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchEvents(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.monitor.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.coord.Start(ctx)
	}()

	<-ctx.Done()
	s.logger.Info("Shutting down, waiting for components to drain")
	wg.Wait()

	if err := s.journal.Close(); err != nil {
		s.logger.ErrorWith(logger.Journal, "Error closing journal: %v", err)
	}
}

// dispatchEvents fans the registry's lifecycle stream out to the audit
// journal and the webhook notifier. Journal appends get a short
// deadline so a wedged disk cannot stall the stream.
func (s *Service) dispatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.registry.Events():
			appendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.journal.Append(appendCtx, ev); err != nil {
				metrics.JournalAppendErrors.Inc()
				s.logger.ErrorWith(logger.Journal, "Failed to journal %s for intent %s: %v", ev.Op, ev.IntentID, err)
			}
			cancel()

			s.notifier.Notify(ctx, ev)
		}
	}
}
