package resonanceproof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"privcore/internal/symbol"
)

// CircuitID names this circuit in envelopes and on-disk key caches.
const CircuitID = "resonance-threshold-v1"

// BitLen mirrors the identity symbol width.
const BitLen = symbol.BitLen

// CircuitResonance proves "these two committed symbols agree on at least
// Threshold bits" without revealing either symbol. Any third party holding
// the two public commitments and the public threshold can verify it.
type CircuitResonance struct {
	// Public inputs
	CommitmentA frontend.Variable `gnark:",public"`
	CommitmentB frontend.Variable `gnark:",public"`
	// Threshold is the minimum matching-bit count, in [0, BitLen].
	Threshold frontend.Variable `gnark:",public"`

	// Private inputs: the symbols, least-significant bit first.
	BitsA [BitLen]frontend.Variable
	BitsB [BitLen]frontend.Variable
}

func (c *CircuitResonance) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	for i := 0; i < BitLen; i++ {
		api.AssertIsBoolean(c.BitsA[i])
		api.AssertIsBoolean(c.BitsB[i])
	}

	// Bind the private bits to the public commitments: cm = MiMC(packed).
	packedA := api.FromBinary(c.BitsA[:]...)
	hasher.Write(packedA)
	api.AssertIsEqual(c.CommitmentA, hasher.Sum())

	packedB := api.FromBinary(c.BitsB[:]...)
	hasher.Reset()
	hasher.Write(packedB)
	api.AssertIsEqual(c.CommitmentB, hasher.Sum())

	// Count agreeing bits: agree_i = 1 - a - b + 2ab.
	matches := frontend.Variable(0)
	for i := 0; i < BitLen; i++ {
		both := api.Mul(c.BitsA[i], c.BitsB[i])
		agree := api.Add(api.Sub(1, c.BitsA[i], c.BitsB[i]), api.Mul(2, both))
		matches = api.Add(matches, agree)
	}
	api.AssertIsLessOrEqual(c.Threshold, matches)
	return nil
}
