// nullifierproof.go - Witness builders for the nullifier derivation circuit.

package nullifierproof

import (
	"math/big"
)

// Assignment builds the full witness (public + private) for proving.
// Byte inputs are interpreted big-endian; the frontend reduces them into the
// scalar field exactly like the native derivation does.
func Assignment(nullifier, actionDigest, epochKey, nonce []byte) *CircuitNullifier {
	return &CircuitNullifier{
		Nullifier:    new(big.Int).SetBytes(nullifier),
		ActionDigest: new(big.Int).SetBytes(actionDigest),
		EpochKey:     new(big.Int).SetBytes(epochKey),
		Nonce:        new(big.Int).SetBytes(nonce),
	}
}

// Public builds the public-only witness for verification.
func Public(nullifier, actionDigest []byte) *CircuitNullifier {
	return &CircuitNullifier{
		Nullifier:    new(big.Int).SetBytes(nullifier),
		ActionDigest: new(big.Int).SetBytes(actionDigest),
	}
}
