// zkhash.go - MiMC hashing and field-element utilities shared across the core.
//
// All commitments, nullifiers, and Merkle nodes are MiMC digests over the
// BN254 scalar field, so the same values can be recomputed inside gnark
// circuits with the std/hash/mimc gadget.

package zkhash

import (
	"crypto/rand"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Size is the digest length in bytes (one BN254 scalar).
const Size = fr.Bytes

// ToField maps arbitrary bytes onto a BN254 scalar (big-endian, mod-reduced).
func ToField(data []byte) fr.Element {
	var e fr.Element
	e.SetBytes(data)
	return e
}

// Sum computes MiMC over the inputs, each reduced to one field element first.
// Reducing before writing keeps every block canonical for the native hasher
// and makes the digest reproducible inside a circuit, one Write per input.
func Sum(inputs ...[]byte) [Size]byte {
	h := mimcNative.NewMiMC()
	for _, in := range inputs {
		e := ToField(in)
		b := e.Bytes()
		h.Write(b[:])
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SumFields computes MiMC over already-reduced field elements.
func SumFields(elems ...fr.Element) fr.Element {
	h := mimcNative.NewMiMC()
	for _, e := range elems {
		b := e.Bytes()
		h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// RandomBytes generates n random bytes using crypto/rand.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
