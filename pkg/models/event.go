package models

import "github.com/ethereum/go-ethereum/common"

// EventOp names the registry operation that produced a lifecycle event.
type EventOp string

const (
	OpCreate          EventOp = "create"
	OpCancel          EventOp = "cancel"
	OpClaim           EventOp = "claim"
	OpFinalizeSuccess EventOp = "finalize_success"
	OpFinalizeFailure EventOp = "finalize_failure"
	OpRecoverStuck    EventOp = "recover_stuck"
)

// LifecycleEvent records a single intent state transition. Every registry
// write emits exactly one; consumers (journal, notifier, indexers) receive
// them best-effort.
type LifecycleEvent struct {
	Op        EventOp        `json:"op"`
	IntentID  string         `json:"intent_id"`
	Owner     common.Address `json:"owner"`
	OldStatus Status         `json:"old_status"`
	NewStatus Status         `json:"new_status"`
	Timestamp int64          `json:"timestamp"` // epoch millis

	// Operation-specific fields.
	TriggerKind  TriggerKind `json:"trigger_kind,omitempty"`  // create
	TriggerValue int64       `json:"trigger_value,omitempty"` // create
	Pair         string      `json:"pair,omitempty"`          // create (fingerprint hex)
	Reason       string      `json:"reason,omitempty"`        // finalize_failure
	Price        int64       `json:"price,omitempty"`         // finalize_success
	Reference    string      `json:"reference,omitempty"`     // finalize_success
}
