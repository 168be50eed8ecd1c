// membershipproof.go - Witness builders for the set-membership circuit.

package membershipproof

import (
	"math/big"

	"privcore/internal/accumulator"
	"privcore/internal/symbol"
)

// Assignment builds the full witness from a symbol and its accumulator
// witness. The commitment root becomes the only public input.
func Assignment(root [32]byte, sym symbol.Symbol, w *accumulator.Witness) *CircuitMembership {
	c := &CircuitMembership{
		Root:   new(big.Int).SetBytes(root[:]),
		Symbol: new(big.Int).SetBytes(sym[:]),
	}
	for k := 0; k < Depth; k++ {
		c.Path[k] = new(big.Int).SetBytes(w.Path[k][:])
		c.Dirs[k] = int(w.PathBit(k))
	}
	return c
}

// Public builds the public-only witness for verification.
func Public(root [32]byte) *CircuitMembership {
	return &CircuitMembership{Root: new(big.Int).SetBytes(root[:])}
}
