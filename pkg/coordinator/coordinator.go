// Package coordinator turns trigger candidates into settled trades, exactly
// once per intent. It is the only component that decrypts intent payloads,
// acting as the trusted enclave principal. Each candidate walks
// Claim -> Decrypt -> Submit -> Finalize; every failure past the claim is
// converted into a terminal, auditable Failed status rather than dropped.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/circuitbreaker"
	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/identity"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
	"github.com/Naveen-6087/sui-tma/pkg/seal"
	"github.com/Naveen-6087/sui-tma/pkg/venue"
)

// BreakerConfig configures the per-pair venue circuit breakers.
type BreakerConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// Coordinator consumes execution candidates and drives them to a terminal
// state. Multiple coordinator instances may run concurrently; correctness
// rests entirely on the registry's atomic claim semantics.
type Coordinator struct {
	registry   *registry.Registry
	gateway    seal.Gateway
	venue      venue.Venue
	enclave    *identity.Enclave
	candidates <-chan models.Candidate

	workers        int
	stuckThreshold time.Duration
	sweepInterval  time.Duration

	breakerCfg BreakerConfig
	breakersMu sync.Mutex
	breakers   map[models.Fingerprint]*circuitbreaker.CircuitBreaker

	logger logger.Logger
	now    func() int64
	wg     sync.WaitGroup
}

// New creates an execution coordinator.
func New(reg *registry.Registry, gateway seal.Gateway, v venue.Venue, enclave *identity.Enclave,
	candidates <-chan models.Candidate, workers int, stuckThreshold, sweepInterval time.Duration,
	breakerCfg BreakerConfig, log logger.Logger,
) *Coordinator {
	return &Coordinator{
		registry:       reg,
		gateway:        gateway,
		venue:          v,
		enclave:        enclave,
		candidates:     candidates,
		workers:        workers,
		stuckThreshold: stuckThreshold,
		sweepInterval:  sweepInterval,
		breakerCfg:     breakerCfg,
		breakers:       make(map[models.Fingerprint]*circuitbreaker.CircuitBreaker),
		logger:         log,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// Start launches the worker pool and the recovery sweep, then blocks until
// the context is cancelled and all workers have drained.
func (c *Coordinator) Start(ctx context.Context) {
	c.logger.InfoWith(logger.Executor, "Starting %d execution workers", c.workers)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	c.wg.Add(1)
	go c.recoverySweep(ctx)

	c.wg.Wait()
}

// worker processes candidates from the trigger monitor.
func (c *Coordinator) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	c.logger.DebugWith(logger.Executor, "Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			c.logger.DebugWith(logger.Executor, "Worker %d shutting down", id)
			return
		case candidate, ok := <-c.candidates:
			if !ok {
				c.logger.DebugWith(logger.Executor, "Worker %d shutting down: channel closed", id)
				return
			}
			c.Process(ctx, candidate)
		}
	}
}

// Process drives one candidate to a terminal outcome. Exported for tests and
// for single-shot execution tooling.
func (c *Coordinator) Process(ctx context.Context, candidate models.Candidate) {
	intent := candidate.Intent
	started := time.Now()

	if cb := c.breaker(intent.PairFingerprint); cb.IsEnabled() && cb.IsOpen() {
		c.logger.NoticeWith(logger.Executor, "Circuit open for pair %s, skipping intent %s",
			intent.PairFingerprint.Hex(), intent.ID)
		metrics.ExecutionOutcomes.WithLabelValues("abandoned", "circuit_open").Inc()
		return
	}

	// Claim: the atomic exclusivity gate. Losing the race to another
	// executor or to a concurrent cancel is the expected outcome, not a
	// fault to surface.
	claimSig, err := c.enclave.SignOp(models.OpClaim, intent.ID)
	if err != nil {
		c.logger.ErrorWith(logger.Executor, "Failed to sign claim for intent %s: %v", intent.ID, err)
		return
	}
	if err := c.registry.ClaimForExecution(intent.ID, claimSig, c.now()); err != nil {
		if errors.Is(err, registry.ErrInvalidState) || errors.Is(err, registry.ErrExpired) {
			c.logger.DebugWith(logger.Executor, "Intent %s already resolved, abandoning: %v", intent.ID, err)
			metrics.ExecutionOutcomes.WithLabelValues("abandoned", "lost_race").Inc()
		} else {
			c.logger.ErrorWith(logger.Executor, "Claim failed for intent %s: %v", intent.ID, err)
			metrics.ExecutionOutcomes.WithLabelValues("abandoned", "claim_error").Inc()
		}
		return
	}

	outcome := c.execute(ctx, candidate)
	metrics.ExecutionDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// execute runs Decrypt -> Submit -> Finalize for a claimed intent and
// returns the outcome label. The decrypted plaintext lives only within this
// call and is wiped before returning.
func (c *Coordinator) execute(ctx context.Context, candidate models.Candidate) string {
	intent := candidate.Intent

	envelope, err := seal.ParseEnvelope(intent.EncryptedPayload)
	if err != nil {
		return c.fail(intent.ID, "envelope parse failed: "+err.Error())
	}

	proof, err := c.enclave.DecryptionProof(intent.ID)
	if err != nil {
		return c.fail(intent.ID, "building decryption proof: "+err.Error())
	}

	plaintext, err := c.gateway.Decrypt(ctx, envelope, proof)
	if err != nil {
		return c.fail(intent.ID, "decryption failed: "+err.Error())
	}
	defer wipe(plaintext)

	order, err := codec.Decode(plaintext)
	if err != nil {
		return c.fail(intent.ID, "payload decode failed: "+err.Error())
	}

	// The trigger price anchors the venue's slippage check.
	fill, err := c.venue.SubmitTrade(ctx, order, intent.TriggerValue)
	cb := c.breaker(intent.PairFingerprint)
	if err != nil {
		cb.RecordFailure()
		return c.fail(intent.ID, "venue submission failed: "+err.Error())
	}
	cb.RecordSuccess()

	sig, err := c.enclave.SignOp(models.OpFinalizeSuccess, intent.ID)
	if err != nil {
		return c.fail(intent.ID, "signing finalize: "+err.Error())
	}
	if err := c.registry.FinalizeSuccess(intent.ID, sig, fill.FilledPrice, fill.Reference, c.now()); err != nil {
		// The trade settled but the registry refused the finalize. Surface
		// loudly: the recovery sweep will eventually return the intent to
		// Active and a duplicate submission becomes possible at the venue.
		c.logger.ErrorWith(logger.Executor, "Finalize after settled trade failed for intent %s: %v", intent.ID, err)
		metrics.ExecutionOutcomes.WithLabelValues("failed", "finalize_error").Inc()
		return "failed"
	}

	metrics.ExecutionOutcomes.WithLabelValues("executed", "").Inc()
	return "executed"
}

// fail finalizes a claimed intent as Failed with the given reason.
func (c *Coordinator) fail(intentID, reason string) string {
	sig, err := c.enclave.SignOp(models.OpFinalizeFailure, intentID)
	if err != nil {
		c.logger.ErrorWith(logger.Executor, "Failed to sign failure for intent %s: %v", intentID, err)
		return "failed"
	}
	if err := c.registry.FinalizeFailure(intentID, sig, reason, c.now()); err != nil {
		c.logger.ErrorWith(logger.Executor, "Failed to finalize failure for intent %s: %v", intentID, err)
	}
	metrics.ExecutionOutcomes.WithLabelValues("failed", "execution_error").Inc()
	return "failed"
}

// recoverySweep periodically returns stuck Executing intents to the eligible
// pool. This bounds the damage from an executor crashing between claim and
// finalize.
func (c *Coordinator) recoverySweep(ctx context.Context) {
	defer c.wg.Done()
	c.logger.InfoWith(logger.Executor, "Recovery sweep started (threshold %v, interval %v)",
		c.stuckThreshold, c.sweepInterval)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoWith(logger.Executor, "Recovery sweep shutting down")
			return
		case <-ticker.C:
			c.SweepOnce()
		}
	}
}

// SweepOnce runs a single recovery pass.
func (c *Coordinator) SweepOnce() {
	nowMs := c.now()
	for _, id := range c.registry.ExecutingOlderThan(nowMs, c.stuckThreshold) {
		err := c.registry.RecoverStuck(id, nowMs, c.stuckThreshold)
		switch {
		case err == nil:
			c.logger.NoticeWith(logger.Executor, "Returned stuck intent %s to the active pool", id)
		case errors.Is(err, registry.ErrInvalidState), errors.Is(err, registry.ErrNotStuck):
			// Finalized or re-claimed between listing and recovery. Fine.
		default:
			c.logger.ErrorWith(logger.Executor, "Recovery failed for intent %s: %v", id, err)
		}
	}
}

// breaker returns the circuit breaker for a pair, creating it on first use.
func (c *Coordinator) breaker(fp models.Fingerprint) *circuitbreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	cb, ok := c.breakers[fp]
	if !ok {
		cb = circuitbreaker.New(c.breakerCfg.Enabled, c.breakerCfg.Threshold,
			c.breakerCfg.Window, c.breakerCfg.ResetTimeout, c.logger)
		c.breakers[fp] = cb
	}
	return cb
}

// BreakerStates reports the open/closed state of every pair breaker,
// keyed by fingerprint hex.
func (c *Coordinator) BreakerStates() map[string]string {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	states := make(map[string]string, len(c.breakers))
	for fp, cb := range c.breakers {
		state := "closed"
		if cb.IsOpen() {
			state = "open"
		}
		states[fp.Hex()] = state
	}
	return states
}

// ResetBreaker force-closes the breaker for a pair. It reports whether a
// breaker existed for that fingerprint.
func (c *Coordinator) ResetBreaker(fp models.Fingerprint) bool {
	c.breakersMu.Lock()
	cb, ok := c.breakers[fp]
	c.breakersMu.Unlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
