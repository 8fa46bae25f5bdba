// Package registry is the authoritative state machine for intent lifecycle
// status. Every transition is an atomic test-and-set under one mutex: the
// precondition check and the write happen as a single indivisible step, which
// is what makes ClaimForExecution an exclusivity gate without any additional
// locking layer. Reads never mutate state.
package registry

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Naveen-6087/sui-tma/pkg/identity"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
)

// eventBuffer bounds the lifecycle event channel. Emission is best-effort:
// when consumers fall behind, events are dropped rather than blocking a
// registry write.
const eventBuffer = 256

// Registry holds one record per intent and the aggregate counters.
type Registry struct {
	mu         sync.Mutex
	intents    map[string]*models.Intent
	byOwner    map[common.Address][]string
	byPair     map[models.Fingerprint]map[string]struct{}
	claimedAt  map[string]int64 // intent id -> claim time, epoch millis
	enclave    common.Address
	enclaveSet bool
	stats      models.RegistryStats

	events chan models.LifecycleEvent
	logger logger.Logger
}

// New creates an empty registry.
func New(log logger.Logger) *Registry {
	return &Registry{
		intents:   make(map[string]*models.Intent),
		byOwner:   make(map[common.Address][]string),
		byPair:    make(map[models.Fingerprint]map[string]struct{}),
		claimedAt: make(map[string]int64),
		events:    make(chan models.LifecycleEvent, eventBuffer),
		logger:    log,
	}
}

// Events exposes the lifecycle event stream consumed by the journal and the
// notifier. Best-effort; slow consumers lose events.
func (r *Registry) Events() <-chan models.LifecycleEvent {
	return r.events
}

// RegisterEnclave records the single principal authorized to claim and
// finalize intents. One-time administrative action.
func (r *Registry) RegisterEnclave(addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enclaveSet {
		return ErrEnclaveRegistered
	}
	r.enclave = addr
	r.enclaveSet = true
	r.logger.NoticeWith(logger.Registry, "Registered enclave identity %s", addr.Hex())
	return nil
}

// EnclaveAddress returns the registered enclave identity.
func (r *Registry) EnclaveAddress() (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enclave, r.enclaveSet
}

// Create registers a new intent in Active status and returns its id.
func (r *Registry) Create(owner common.Address, payload []byte, kind models.TriggerKind,
	value int64, fingerprint models.Fingerprint, expiresAtMs, nowMs int64,
) (string, error) {
	if expiresAtMs <= nowMs {
		return "", ErrInvalidExpiry
	}
	if !kind.Valid() {
		return "", ErrInvalidTrigger
	}
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	// Own the ciphertext: the stored payload is write-once and must not be
	// reachable through the caller's slice.
	stored := make([]byte, len(payload))
	copy(stored, payload)

	intent := &models.Intent{
		ID:               uuid.NewString(),
		Owner:            owner,
		EncryptedPayload: stored,
		PairFingerprint:  fingerprint,
		TriggerKind:      kind,
		TriggerValue:     value,
		CreatedAt:        nowMs,
		ExpiresAt:        expiresAtMs,
		Status:           models.StatusActive,
	}

	r.mu.Lock()
	r.intents[intent.ID] = intent
	r.byOwner[owner] = append(r.byOwner[owner], intent.ID)
	if r.byPair[fingerprint] == nil {
		r.byPair[fingerprint] = make(map[string]struct{})
	}
	r.byPair[fingerprint][intent.ID] = struct{}{}
	r.stats.TotalCreated++
	r.stats.ActiveCount++
	metrics.ActiveIntents.Set(float64(r.stats.ActiveCount))
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpCreate)).Inc()
	r.logger.InfoWith(logger.Registry, "Created intent %s (owner %s, %s @ %d, expires %d)",
		intent.ID, owner.Hex(), kind, value, expiresAtMs)

	r.emit(models.LifecycleEvent{
		Op:           models.OpCreate,
		IntentID:     intent.ID,
		Owner:        owner,
		NewStatus:    models.StatusActive,
		Timestamp:    nowMs,
		TriggerKind:  kind,
		TriggerValue: value,
		Pair:         fingerprint.Hex(),
	})
	return intent.ID, nil
}

// Cancel transitions Active -> Cancelled. Only the owner may cancel.
func (r *Registry) Cancel(id string, caller common.Address, nowMs int64) error {
	r.mu.Lock()
	intent, ok := r.intents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if intent.Owner != caller {
		r.mu.Unlock()
		return ErrNotOwner
	}
	if intent.Status != models.StatusActive {
		r.mu.Unlock()
		return ErrInvalidState
	}

	intent.Status = models.StatusCancelled
	r.stats.ActiveCount--
	metrics.ActiveIntents.Set(float64(r.stats.ActiveCount))
	owner := intent.Owner
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpCancel)).Inc()
	r.logger.InfoWith(logger.Registry, "Cancelled intent %s", id)

	r.emit(models.LifecycleEvent{
		Op:        models.OpCancel,
		IntentID:  id,
		Owner:     owner,
		OldStatus: models.StatusActive,
		NewStatus: models.StatusCancelled,
		Timestamp: nowMs,
	})
	return nil
}

// ClaimForExecution transitions Active -> Executing, granting the caller
// exclusive rights to execute the intent. At most one claim can succeed per
// intent: the precondition check and the status write are one atomic step.
//
// An expired intent can never be claimed; recognizing expiry here also flips
// the stored status to Expired so the record stops participating in
// trigger evaluation (the lazy-expiry write-on-touch).
func (r *Registry) ClaimForExecution(id string, sig []byte, nowMs int64) error {
	if err := r.verifyEnclave(models.OpClaim, id, sig); err != nil {
		return err
	}

	r.mu.Lock()
	intent, ok := r.intents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if intent.Status != models.StatusActive {
		r.mu.Unlock()
		return ErrInvalidState
	}
	if intent.ExpiredAt(nowMs) {
		intent.Status = models.StatusExpired
		r.stats.ActiveCount--
		metrics.ActiveIntents.Set(float64(r.stats.ActiveCount))
		r.mu.Unlock()
		return ErrExpired
	}

	intent.Status = models.StatusExecuting
	r.claimedAt[id] = nowMs
	owner := intent.Owner
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpClaim)).Inc()
	r.logger.InfoWith(logger.Registry, "Claimed intent %s for execution", id)

	r.emit(models.LifecycleEvent{
		Op:        models.OpClaim,
		IntentID:  id,
		Owner:     owner,
		OldStatus: models.StatusActive,
		NewStatus: models.StatusExecuting,
		Timestamp: nowMs,
	})
	return nil
}

// FinalizeSuccess transitions Executing -> Executed and records the realized
// price and execution reference.
func (r *Registry) FinalizeSuccess(id string, sig []byte, executedPrice int64, reference string, nowMs int64) error {
	if err := r.verifyEnclave(models.OpFinalizeSuccess, id, sig); err != nil {
		return err
	}

	r.mu.Lock()
	intent, ok := r.intents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if intent.Status != models.StatusExecuting {
		r.mu.Unlock()
		return ErrInvalidState
	}

	intent.Status = models.StatusExecuted
	intent.ExecutedAt = nowMs
	intent.ExecutedPrice = executedPrice
	intent.ExecutionReference = reference
	delete(r.claimedAt, id)
	r.stats.ActiveCount--
	r.stats.ExecutedCount++
	metrics.ActiveIntents.Set(float64(r.stats.ActiveCount))
	owner := intent.Owner
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpFinalizeSuccess)).Inc()
	r.logger.NoticeWith(logger.Registry, "Executed intent %s at price %d (ref %s)", id, executedPrice, reference)

	r.emit(models.LifecycleEvent{
		Op:        models.OpFinalizeSuccess,
		IntentID:  id,
		Owner:     owner,
		OldStatus: models.StatusExecuting,
		NewStatus: models.StatusExecuted,
		Timestamp: nowMs,
		Price:     executedPrice,
		Reference: reference,
	})
	return nil
}

// FinalizeFailure transitions Executing -> Failed with a human-readable
// reason captured for the audit trail.
func (r *Registry) FinalizeFailure(id string, sig []byte, reason string, nowMs int64) error {
	if err := r.verifyEnclave(models.OpFinalizeFailure, id, sig); err != nil {
		return err
	}

	r.mu.Lock()
	intent, ok := r.intents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if intent.Status != models.StatusExecuting {
		r.mu.Unlock()
		return ErrInvalidState
	}

	intent.Status = models.StatusFailed
	intent.FailureReason = reason
	delete(r.claimedAt, id)
	r.stats.ActiveCount--
	metrics.ActiveIntents.Set(float64(r.stats.ActiveCount))
	owner := intent.Owner
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpFinalizeFailure)).Inc()
	r.logger.ErrorWith(logger.Registry, "Intent %s failed: %s", id, reason)

	r.emit(models.LifecycleEvent{
		Op:        models.OpFinalizeFailure,
		IntentID:  id,
		Owner:     owner,
		OldStatus: models.StatusExecuting,
		NewStatus: models.StatusFailed,
		Timestamp: nowMs,
		Reason:    reason,
	})
	return nil
}

// RecoverStuck transitions Executing -> Active for a claim older than
// stuckThreshold, returning the intent to the eligible pool. This is the
// recovery path for an executor that crashed between claim and finalize.
func (r *Registry) RecoverStuck(id string, nowMs int64, stuckThreshold time.Duration) error {
	r.mu.Lock()
	intent, ok := r.intents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if intent.Status != models.StatusExecuting {
		r.mu.Unlock()
		return ErrInvalidState
	}
	claimed := r.claimedAt[id]
	if nowMs-claimed < stuckThreshold.Milliseconds() {
		r.mu.Unlock()
		return ErrNotStuck
	}

	intent.Status = models.StatusActive
	delete(r.claimedAt, id)
	owner := intent.Owner
	r.mu.Unlock()

	metrics.IntentTransitions.WithLabelValues(string(models.OpRecoverStuck)).Inc()
	metrics.StuckRecoveries.Inc()
	r.logger.NoticeWith(logger.Registry, "Recovered stuck intent %s (claimed %dms ago)", id, nowMs-claimed)

	r.emit(models.LifecycleEvent{
		Op:        models.OpRecoverStuck,
		IntentID:  id,
		Owner:     owner,
		OldStatus: models.StatusExecuting,
		NewStatus: models.StatusActive,
		Timestamp: nowMs,
	})
	return nil
}

// Get returns a copy of the intent. An Active record past its deadline reads
// as Expired: expiry is recognized lazily by readers without a write.
func (r *Registry) Get(id string, nowMs int64) (models.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[id]
	if !ok {
		return models.Intent{}, ErrNotFound
	}
	return r.snapshot(intent, nowMs), nil
}

// ListByOwner returns copies of all intents created by owner, in creation order.
func (r *Registry) ListByOwner(owner common.Address, nowMs int64) []models.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byOwner[owner]
	out := make([]models.Intent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.snapshot(r.intents[id], nowMs))
	}
	return out
}

// ActiveByPair returns copies of the Active, non-expired intents on a pair.
// Used by the trigger monitor; never includes expired intents.
func (r *Registry) ActiveByPair(fingerprint models.Fingerprint, nowMs int64) []models.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Intent, 0, len(r.byPair[fingerprint]))
	for id := range r.byPair[fingerprint] {
		intent := r.intents[id]
		if intent.Status == models.StatusActive && !intent.ExpiredAt(nowMs) {
			out = append(out, r.snapshot(intent, nowMs))
		}
	}
	return out
}

// ActivePairs returns the distinct fingerprints that currently have at least
// one Active, non-expired intent. The monitor fetches one price per entry.
func (r *Registry) ActivePairs(nowMs int64) []models.Fingerprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Fingerprint, 0, len(r.byPair))
	for fp, ids := range r.byPair {
		for id := range ids {
			intent := r.intents[id]
			if intent.Status == models.StatusActive && !intent.ExpiredAt(nowMs) {
				out = append(out, fp)
				break
			}
		}
	}
	return out
}

// ExecutingOlderThan returns the ids of Executing intents whose claim age
// meets or exceeds threshold. Feed for the recovery sweep.
func (r *Registry) ExecutingOlderThan(nowMs int64, threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for id, claimed := range r.claimedAt {
		if nowMs-claimed >= threshold.Milliseconds() {
			out = append(out, id)
		}
	}
	return out
}

// Stats returns the aggregate counters.
func (r *Registry) Stats() models.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// snapshot copies an intent, applying lazy expiry recognition for readers.
// Caller must hold r.mu.
func (r *Registry) snapshot(intent *models.Intent, nowMs int64) models.Intent {
	out := *intent
	out.EncryptedPayload = make([]byte, len(intent.EncryptedPayload))
	copy(out.EncryptedPayload, intent.EncryptedPayload)
	if out.Status == models.StatusActive && out.ExpiredAt(nowMs) {
		out.Status = models.StatusExpired
	}
	return out
}

// verifyEnclave checks a privileged caller's signature before any state is
// read or written, so an authorization failure reveals nothing about the
// target intent.
func (r *Registry) verifyEnclave(op models.EventOp, id string, sig []byte) error {
	r.mu.Lock()
	enclave, set := r.enclave, r.enclaveSet
	r.mu.Unlock()

	if !set {
		return ErrNoEnclave
	}
	if !identity.Verify(enclave, op, id, sig) {
		return ErrUnauthorized
	}
	return nil
}

func (r *Registry) emit(ev models.LifecycleEvent) {
	select {
	case r.events <- ev:
	default:
		metrics.DroppedEvents.Inc()
		r.logger.ErrorWith(logger.Registry, "Event buffer full, dropped %s event for intent %s", ev.Op, ev.IntentID)
	}
}
