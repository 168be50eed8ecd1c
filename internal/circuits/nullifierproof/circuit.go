package nullifierproof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CircuitID names this circuit in envelopes and on-disk key caches.
const CircuitID = "nullifier-derivation-v1"

// CircuitNullifier proves that a public nullifier was correctly derived
// from a hidden epoch key and nonce:
//
//	nullifier = MiMC(epochKey, actionDigest, nonce)
//
// Revealing the nullifier and action digest while keeping the key and nonce
// private is what makes the token one-time yet unlinkable.
type CircuitNullifier struct {
	// Public inputs
	Nullifier    frontend.Variable `gnark:",public"`
	ActionDigest frontend.Variable `gnark:",public"`

	// Private inputs
	EpochKey frontend.Variable
	Nonce    frontend.Variable
}

func (c *CircuitNullifier) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.EpochKey, c.ActionDigest, c.Nonce)
	api.AssertIsEqual(c.Nullifier, hasher.Sum())
	return nil
}
