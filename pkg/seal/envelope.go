// Package seal bridges plaintext intent payloads and the external threshold
// encryption service. The service alone holds the cryptography: a ciphertext
// is bound to a policy identity and only a caller presenting a valid
// authorization proof for that identity can open it. This package handles
// orchestration and envelope bookkeeping, not the crypto itself.
package seal

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEncryptionUnavailable means the encryption service could not be
	// reached or refused the request. Callers must not fall back to storing
	// plaintext.
	ErrEncryptionUnavailable = errors.New("encryption service unavailable")

	// ErrUnauthorized means the policy check rejected the decryption proof.
	ErrUnauthorized = errors.New("decryption not authorized")

	// ErrCorrupt means the envelope could not be parsed or fails structural
	// validation.
	ErrCorrupt = errors.New("corrupt envelope")
)

// MinCiphertextSize is the smallest ciphertext a well-formed envelope can
// carry. Anything shorter is rejected before spending a create operation.
const MinCiphertextSize = 32

// envelopeVersion is the only envelope layout this gateway understands.
const envelopeVersion = 1

// Envelope is the structured ciphertext-plus-metadata unit produced by the
// encryption service. The metadata is enough to validate the envelope without
// decrypting it.
type Envelope struct {
	Version    int    `json:"version"`
	Threshold  int    `json:"threshold"`  // k of the k-of-n key-server scheme
	Identity   string `json:"identity"`   // policy identity the ciphertext is bound to
	Ciphertext []byte `json:"ciphertext"` // opaque bytes, never inspected locally
}

// Validate performs the structural (non-cryptographic) envelope check:
// required metadata present, supported version, ciphertext above the minimum
// size. It says nothing about whether the ciphertext will decrypt.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrCorrupt)
	}
	if e.Version != envelopeVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, e.Version)
	}
	if e.Threshold < 1 {
		return fmt.Errorf("%w: threshold %d", ErrCorrupt, e.Threshold)
	}
	if e.Identity == "" {
		return fmt.Errorf("%w: missing policy identity", ErrCorrupt)
	}
	if len(e.Ciphertext) < MinCiphertextSize {
		return fmt.Errorf("%w: ciphertext %d bytes, minimum %d", ErrCorrupt, len(e.Ciphertext), MinCiphertextSize)
	}
	return nil
}

// Marshal serializes the envelope for storage in an intent's encrypted payload.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// ParseEnvelope deserializes and validates stored envelope bytes.
func ParseEnvelope(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
