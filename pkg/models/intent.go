package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PriceScale is the implied decimal scale of fixed-point prices and trigger values.
const PriceScale = int64(100_000_000) // 1e8

// Status is the lifecycle state of an intent.
type Status string

const (
	// StatusActive means the intent is waiting for its trigger.
	StatusActive Status = "active"
	// StatusExecuting means an executor has claimed the intent and is acting on it.
	StatusExecuting Status = "executing"
	// StatusExecuted means the trade settled successfully. Terminal.
	StatusExecuted Status = "executed"
	// StatusCancelled means the owner withdrew the intent. Terminal.
	StatusCancelled Status = "cancelled"
	// StatusExpired means the intent outlived its deadline. Terminal.
	// Expiry is recognized lazily by readers comparing ExpiresAt to now.
	StatusExpired Status = "expired"
	// StatusFailed means execution was attempted and failed. Terminal.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status ends the intent's participation in
// trigger evaluation and claiming.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// TriggerKind is the price condition that makes an intent eligible for execution.
type TriggerKind uint8

const (
	// PriceBelow triggers when the observed price is at or below the trigger value.
	PriceBelow TriggerKind = iota
	// PriceAbove triggers when the observed price is at or above the trigger value.
	PriceAbove
)

// Valid reports whether the trigger kind is one of the enumerated values.
func (k TriggerKind) Valid() bool {
	return k == PriceBelow || k == PriceAbove
}

func (k TriggerKind) String() string {
	switch k {
	case PriceBelow:
		return "price_below"
	case PriceAbove:
		return "price_above"
	}
	return "unknown"
}

// Matches evaluates the trigger predicate against an observed price.
/// Both kinds are boundary-inclusive: a price exactly at the trigger value matches.
func (k TriggerKind) Matches(price, triggerValue int64) bool {
	switch k {
	case PriceBelow:
		return price <= triggerValue
	case PriceAbove:
		return price >= triggerValue
	}
	return false
}

// Fingerprint is a 32-byte hash of a trading-pair identifier, kept in clear so
// active intents can be indexed and filtered without decryption.
type Fingerprint [32]byte

// Hex returns the 0x-prefixed hex encoding of the fingerprint.
func (f Fingerprint) Hex() string {
	return hexutil.Encode(f[:])
}

// ParseFingerprint decodes a 0x-prefixed hex string into a Fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hexutil.Decode(s)
	if err != nil {
		return f, err
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("fingerprint must be %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// Intent is an encrypted, conditional trading instruction.
//
// EncryptedPayload is write-once: no operation ever mutates it after creation,
// and its plaintext never leaves the executor's submit step.
type Intent struct {
	ID               string         `json:"id"`
	Owner            common.Address `json:"owner"`
	EncryptedPayload []byte         `json:"encrypted_payload"`
	PairFingerprint  Fingerprint    `json:"pair_fingerprint"`
	TriggerKind      TriggerKind    `json:"trigger_kind"`
	TriggerValue     int64          `json:"trigger_value"`
	CreatedAt        int64          `json:"created_at"` // epoch millis
	ExpiresAt        int64          `json:"expires_at"` // epoch millis
	Status           Status         `json:"status"`

	// Populated only on successful execution.
	ExecutedAt         int64  `json:"executed_at,omitempty"`
	ExecutedPrice      int64  `json:"executed_price,omitempty"`
	ExecutionReference string `json:"execution_reference,omitempty"`

	// Populated only on failed execution.
	FailureReason string `json:"failure_reason,omitempty"`
}

// ExpiredAt reports whether the intent's deadline has passed at the given time.
func (i *Intent) ExpiredAt(nowMs int64) bool {
	return i.ExpiresAt <= nowMs
}

// Candidate is an intent whose trigger predicate evaluated true, handed from
// the trigger monitor to the execution coordinator together with the price
// that satisfied it.
type Candidate struct {
	Intent        Intent
	ObservedPrice int64
}

// RegistryStats are aggregate counters mutated only as a side effect of
// individual intent transitions.
type RegistryStats struct {
	TotalCreated  int64 `json:"total_created"`
	ActiveCount   int64 `json:"active_count"`
	ExecutedCount int64 `json:"executed_count"`
}
