// Package codec provides the deterministic plaintext encoding of an intent's
// trading parameters and the stable pair fingerprint used for clear-text
// indexing. Encoding is byte-stable: the same fields always produce identical
// output, so hashes of the encoding can be compared or logged safely.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Naveen-6087/sui-tma/pkg/models"
)

// ErrMalformed is returned by Decode for truncated or type-mismatched input.
var ErrMalformed = errors.New("malformed intent payload")

// codecVersion is the first byte of every encoded payload.
const codecVersion = byte(1)

// maxPairLen bounds the pair identifier so a corrupt length prefix cannot
// drive a huge allocation during decode.
const maxPairLen = 64

// Encode serializes order fields into a deterministic byte payload.
//
// Layout: version(1) | pairLen(2 BE) | pair | side(1) | orderType(1) |
// quantity(8 BE) | leverage(1) | slippageBps(2 BE) | expiryMs(8 BE).
func Encode(f models.OrderFields) ([]byte, error) {
	if len(f.Pair) == 0 || len(f.Pair) > maxPairLen {
		return nil, fmt.Errorf("%w: pair length %d", ErrMalformed, len(f.Pair))
	}
	if f.Side > models.SideSell {
		return nil, fmt.Errorf("%w: invalid side %d", ErrMalformed, f.Side)
	}
	if f.OrderType > models.OrderLimit {
		return nil, fmt.Errorf("%w: invalid order type %d", ErrMalformed, f.OrderType)
	}

	buf := make([]byte, 0, 3+len(f.Pair)+21)
	buf = append(buf, codecVersion)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Pair)))
	buf = append(buf, f.Pair...)
	buf = append(buf, byte(f.Side), byte(f.OrderType))
	buf = binary.BigEndian.AppendUint64(buf, uint64(f.Quantity))
	buf = append(buf, f.Leverage)
	buf = binary.BigEndian.AppendUint16(buf, f.SlippageBps)
	buf = binary.BigEndian.AppendUint64(buf, uint64(f.ExpiryMs))
	return buf, nil
}

// Decode parses a payload produced by Encode. It never panics: any
// truncation, bad version, or out-of-range field yields ErrMalformed.
func Decode(b []byte) (models.OrderFields, error) {
	var f models.OrderFields

	if len(b) < 3 {
		return f, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	if b[0] != codecVersion {
		return f, fmt.Errorf("%w: unsupported version %d", ErrMalformed, b[0])
	}

	pairLen := int(binary.BigEndian.Uint16(b[1:3]))
	if pairLen == 0 || pairLen > maxPairLen {
		return f, fmt.Errorf("%w: pair length %d", ErrMalformed, pairLen)
	}

	rest := b[3:]
	if len(rest) != pairLen+21 {
		return f, fmt.Errorf("%w: expected %d payload bytes, got %d", ErrMalformed, pairLen+21, len(rest))
	}

	f.Pair = string(rest[:pairLen])
	rest = rest[pairLen:]

	f.Side = models.Side(rest[0])
	if f.Side > models.SideSell {
		return models.OrderFields{}, fmt.Errorf("%w: invalid side %d", ErrMalformed, rest[0])
	}
	f.OrderType = models.OrderType(rest[1])
	if f.OrderType > models.OrderLimit {
		return models.OrderFields{}, fmt.Errorf("%w: invalid order type %d", ErrMalformed, rest[1])
	}

	f.Quantity = int64(binary.BigEndian.Uint64(rest[2:10]))
	f.Leverage = rest[10]
	f.SlippageBps = binary.BigEndian.Uint16(rest[11:13])
	f.ExpiryMs = int64(binary.BigEndian.Uint64(rest[13:21]))
	return f, nil
}

// PairFingerprint computes the stable 32-byte Keccak-256 digest of a
// trading-pair identifier. It is used only for indexing and filtering,
// never for security decisions.
func PairFingerprint(pair string) models.Fingerprint {
	var fp models.Fingerprint
	copy(fp[:], crypto.Keccak256([]byte(pair)))
	return fp
}
