// Package identity models the enclave credential: a secp256k1 keypair whose
// address is registered once with the registry as the sole principal allowed
// to claim and finalize intents. Every privileged registry call carries a
// signature over a canonical operation digest; the registry recovers the
// signer and compares it to the registered address.
package identity

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Naveen-6087/sui-tma/pkg/models"
)

// domainTag separates operation digests from any other signed payloads.
const domainTag = "intent-lifecycle-v1"

// Enclave holds the execution principal's signing key.
type Enclave struct {
	key *ecdsa.PrivateKey
}

// NewEnclaveFromHex loads the enclave key from its hex encoding.
func NewEnclaveFromHex(hexKey string) (*Enclave, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid enclave key: %v", err)
	}
	return &Enclave{key: key}, nil
}

// GenerateEnclave creates a fresh enclave keypair. Used in tests and
// first-run bootstrap.
func GenerateEnclave() (*Enclave, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating enclave key: %v", err)
	}
	return &Enclave{key: key}, nil
}

// Address returns the enclave's on-registry identity.
func (e *Enclave) Address() common.Address {
	return crypto.PubkeyToAddress(e.key.PublicKey)
}

// SignOp signs the canonical digest of a privileged operation on an intent.
func (e *Enclave) SignOp(op models.EventOp, intentID string) ([]byte, error) {
	sig, err := crypto.Sign(OpDigest(op, intentID), e.key)
	if err != nil {
		return nil, fmt.Errorf("signing %s for intent %s: %v", op, intentID, err)
	}
	return sig, nil
}

// DecryptionProof produces the authorization proof presented to the
// encryption service when opening an intent's envelope. The service verifies
// it against the policy identity the ciphertext was sealed to.
func (e *Enclave) DecryptionProof(intentID string) ([]byte, error) {
	return e.SignOp("decrypt", intentID)
}

// PolicyIdentity is the encryption policy identity for an enclave address.
// Ciphertexts sealed to it can only be opened by that enclave.
func PolicyIdentity(addr common.Address) string {
	return "enclave:" + addr.Hex()
}

// OpDigest computes the canonical 32-byte digest signed for a privileged
// operation.
func OpDigest(op models.EventOp, intentID string) []byte {
	return crypto.Keccak256([]byte(domainTag), []byte(op), []byte(intentID))
}

// RecoverSigner recovers the address that signed an operation digest.
func RecoverSigner(op models.EventOp, intentID string, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(OpDigest(op, intentID), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig is a valid signature by expected over the
// operation digest.
func Verify(expected common.Address, op models.EventOp, intentID string, sig []byte) bool {
	signer, err := RecoverSigner(op, intentID, sig)
	if err != nil {
		return false
	}
	return signer == expected
}
