// resonanceproof.go - Witness builders for the resonance threshold circuit.

package resonanceproof

import (
	"math/big"

	"privcore/internal/symbol"
)

// Assignment builds the full witness for proving that symbols a and b agree
// on at least threshold bits.
func Assignment(a, b symbol.Symbol, threshold int) *CircuitResonance {
	cmA := a.Commitment()
	cmB := b.Commitment()
	c := &CircuitResonance{
		CommitmentA: new(big.Int).SetBytes(cmA[:]),
		CommitmentB: new(big.Int).SetBytes(cmB[:]),
		Threshold:   threshold,
	}
	for i := 0; i < BitLen; i++ {
		c.BitsA[i] = int(a.Bit(i))
		c.BitsB[i] = int(b.Bit(i))
	}
	return c
}

// Public builds the public-only witness for verification from the two
// symbol commitments and the threshold count.
func Public(cmA, cmB [32]byte, threshold int) *CircuitResonance {
	return &CircuitResonance{
		CommitmentA: new(big.Int).SetBytes(cmA[:]),
		CommitmentB: new(big.Int).SetBytes(cmB[:]),
		Threshold:   threshold,
	}
}
