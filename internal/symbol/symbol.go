// symbol.go - IdentitySymbol type for the nullifier and membership core.
//
// A Symbol is the fixed-size compressed identity representation supplied by
// the external compression collaborator. It is treated as opaque input: this
// core hashes and compares symbols but never reconstructs one.

package symbol

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"privcore/internal/zkhash"
)

// BitLen is the fixed symbol width in bits.
const BitLen = 128

// ByteLen is the fixed symbol width in bytes.
const ByteLen = BitLen / 8

// Symbol is a 128-bit identity vector.
type Symbol [ByteLen]byte

// Parse decodes a symbol from its hex representation.
func Parse(s string) (Symbol, error) {
	var sym Symbol
	b, err := hex.DecodeString(s)
	if err != nil {
		return sym, fmt.Errorf("invalid symbol encoding: %w", err)
	}
	if len(b) != ByteLen {
		return sym, fmt.Errorf("invalid symbol length: got %d bytes, want %d", len(b), ByteLen)
	}
	copy(sym[:], b)
	return sym, nil
}

// Random generates a uniformly random symbol. Intended for tests and
// simulations; real symbols come from the compression collaborator.
func Random() Symbol {
	var sym Symbol
	copy(sym[:], zkhash.RandomBytes(ByteLen))
	return sym
}

// String returns the hex encoding of the symbol.
func (s Symbol) String() string {
	return hex.EncodeToString(s[:])
}

// Field returns the symbol as a BN254 scalar (big-endian interpretation;
// 128 bits always fit without reduction).
func (s Symbol) Field() fr.Element {
	return zkhash.ToField(s[:])
}

// Bit returns bit i of the symbol's integer value, little-endian, so that
// Field() equals the binary recomposition used by the in-circuit gadgets.
func (s Symbol) Bit(i int) uint8 {
	return (s[ByteLen-1-i/8] >> (i % 8)) & 1
}

// Bits returns all 128 bits, least-significant first.
func (s Symbol) Bits() [BitLen]uint8 {
	var bits [BitLen]uint8
	for i := 0; i < BitLen; i++ {
		bits[i] = s.Bit(i)
	}
	return bits
}

// Commitment returns the public MiMC commitment to the symbol. This is the
// value that appears in proof envelopes and accumulator leaves.
func (s Symbol) Commitment() [zkhash.Size]byte {
	return zkhash.Sum(s[:])
}
