package membershipproof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"privcore/internal/accumulator"
)

// CircuitID names this circuit in envelopes and on-disk key caches.
const CircuitID = "set-membership-v1"

// Depth mirrors the accumulator tree depth.
const Depth = accumulator.Depth

// CircuitMembership proves that a hidden identity symbol hashes to a leaf
// included under a public accumulator root, without revealing the symbol or
// its position.
type CircuitMembership struct {
	// Public inputs
	Root frontend.Variable `gnark:",public"`

	// Private inputs
	Symbol frontend.Variable
	Path   [Depth]frontend.Variable
	// Dirs[k] is 1 when the running node is the right child at level k.
	Dirs [Depth]frontend.Variable
}

func (c *CircuitMembership) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// Leaf = MiMC(symbol), matching the native accumulator leaves.
	hasher.Write(c.Symbol)
	cur := hasher.Sum()

	for k := 0; k < Depth; k++ {
		api.AssertIsBoolean(c.Dirs[k])
		left := api.Select(c.Dirs[k], c.Path[k], cur)
		right := api.Select(c.Dirs[k], cur, c.Path[k])
		hasher.Reset()
		hasher.Write(left, right)
		cur = hasher.Sum()
	}

	api.AssertIsEqual(c.Root, cur)
	return nil
}
