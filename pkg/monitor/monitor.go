// Package monitor implements the trigger monitor: a polling loop that
// evaluates every Active, non-expired intent's price predicate and hands
// eligible intents to the execution coordinator. The monitor performs no
// registry writes; it only classifies.
package monitor

import (
	"context"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/pricefeed"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
)

// candidateBuffer bounds the hand-off channel to the coordinator.
const candidateBuffer = 100

// Monitor polls prices for all active intents' pairs and evaluates trigger
// predicates.
type Monitor struct {
	registry *registry.Registry
	feed     pricefeed.Feed
	interval time.Duration

	// pairs maps a fingerprint back to the pair identifier the feed
	// understands. Built from the configured pair universe; the pair id
	// itself is encrypted inside the intent so only the fingerprint is
	// available in clear.
	pairs map[models.Fingerprint]string

	candidates chan models.Candidate
	logger     logger.Logger
	now        func() int64
}

// New creates a trigger monitor over the given pair universe.
func New(reg *registry.Registry, feed pricefeed.Feed, universe map[models.Fingerprint]string,
	interval time.Duration, log logger.Logger,
) *Monitor {
	return &Monitor{
		registry:   reg,
		feed:       feed,
		interval:   interval,
		pairs:      universe,
		candidates: make(chan models.Candidate, candidateBuffer),
		logger:     log,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Candidates is the stream of execution-eligible intents. Successive cycles
// are independent; no ordering is guaranteed across cycles.
func (m *Monitor) Candidates() <-chan models.Candidate {
	return m.candidates
}

// Start runs the polling loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.InfoWith(logger.Monitor, "Trigger monitor started with polling interval %v", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoWith(logger.Monitor, "Trigger monitor shutting down")
			return
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle evaluates one polling pass: one batched price fetch for the distinct
// pairs with active intents, then at most one predicate evaluation per
// intent. Expired intents are never emitted as candidates.
func (m *Monitor) Cycle(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.TriggerCycleDuration.Observe(time.Since(started).Seconds())
	}()

	nowMs := m.now()
	fingerprints := m.registry.ActivePairs(nowMs)
	if len(fingerprints) == 0 {
		return
	}

	var pairNames []string
	byName := make(map[string]models.Fingerprint, len(fingerprints))
	for _, fp := range fingerprints {
		name, ok := m.pairs[fp]
		if !ok {
			m.logger.DebugWith(logger.Monitor, "No pair mapping for fingerprint %s, skipping", fp.Hex())
			continue
		}
		pairNames = append(pairNames, name)
		byName[name] = fp
	}
	if len(pairNames) == 0 {
		return
	}

	prices, err := m.feed.GetPrices(ctx, pairNames)
	if err != nil {
		metrics.PriceFeedErrors.Inc()
		m.logger.ErrorWith(logger.Monitor, "Price fetch failed, skipping cycle: %v", err)
		return
	}

	matched := 0
	for name, fp := range byName {
		price, ok := prices[name]
		if !ok {
			m.logger.DebugWith(logger.Monitor, "Feed returned no price for %s", name)
			continue
		}

		for _, intent := range m.registry.ActiveByPair(fp, nowMs) {
			if !intent.TriggerKind.Matches(price, intent.TriggerValue) {
				continue
			}

			metrics.TriggerMatches.WithLabelValues(intent.TriggerKind.String()).Inc()
			matched++
			m.logger.InfoWith(logger.Monitor, "Intent %s triggered: %s %d at price %d",
				intent.ID, intent.TriggerKind, intent.TriggerValue, price)

			select {
			case m.candidates <- models.Candidate{Intent: intent, ObservedPrice: price}:
			case <-ctx.Done():
				return
			}
		}
	}

	if matched > 0 {
		m.logger.DebugWith(logger.Monitor, "Cycle emitted %d candidates across %d pairs", matched, len(pairNames))
	}
}
