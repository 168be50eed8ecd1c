// membership.go - Zero-knowledge membership proof orchestration.
//
// The accumulator produces plain Merkle witnesses; this wraps them in a
// SNARK so a relying party learns only "some enrolled symbol sits under
// this root", not which leaf or which symbol.

package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"privcore/internal/accumulator"
	"privcore/internal/circuits/membershipproof"
	"privcore/internal/proofbackend"
	"privcore/internal/symbol"
)

// MembershipProver generates and verifies membership envelopes.
type MembershipProver struct {
	backend proofbackend.Backend
	prover  *proofbackend.Prover
	keys    proofbackend.Keys
}

// NewMembershipProver compiles the membership circuit against the backend.
func NewMembershipProver(backend proofbackend.Backend, prover *proofbackend.Prover) (*MembershipProver, error) {
	keys, err := backend.Compile(membershipproof.CircuitID, &membershipproof.CircuitMembership{})
	if err != nil {
		return nil, err
	}
	return &MembershipProver{backend: backend, prover: prover, keys: keys}, nil
}

// Prove builds an envelope showing sym is included under cm. The witness
// must belong to the same commitment version.
func (mp *MembershipProver) Prove(ctx context.Context, cm accumulator.Commitment, sym symbol.Symbol, wit *accumulator.Witness) (*proofbackend.Envelope, error) {
	if wit.Version != cm.Version {
		return nil, fmt.Errorf("%w: witness version %d against commitment version %d",
			accumulator.ErrStaleWitness, wit.Version, cm.Version)
	}
	assignment := membershipproof.Assignment(cm.Root, sym, wit)
	proof, err := mp.prover.Submit(ctx, mp.keys, assignment).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("membership proof: %w", err)
	}
	publics := map[string]any{
		"root":    hex.EncodeToString(cm.Root[:]),
		"version": cm.Version,
	}
	return proofbackend.NewEnvelope(membershipproof.CircuitID, mp.backend.Tag(), publics, proof, "", cm.Version), nil
}

// Verify checks a membership envelope. The envelope's root must match the
// accumulator commitment at the claimed version; a proof against a version
// that rolled out of the snapshot window is rejected as stale.
func (mp *MembershipProver) Verify(acc *accumulator.Accumulator, env *proofbackend.Envelope) error {
	rootHex, err := env.PublicString("root")
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	root, err := hex.DecodeString(rootHex)
	if err != nil || len(root) != len(accumulator.Commitment{}.Root) {
		return fmt.Errorf("%w: bad root", proofbackend.ErrProofVerificationFailed)
	}
	version, err := env.PublicUint("version")
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}

	cm, err := acc.CommitmentAt(version)
	if err != nil {
		if errors.Is(err, accumulator.ErrVersionUnavailable) {
			return fmt.Errorf("%w: commitment version %d no longer available",
				accumulator.ErrStaleWitness, version)
		}
		return err
	}
	var claimed [len(cm.Root)]byte
	copy(claimed[:], root)
	if cm.Root != claimed {
		return fmt.Errorf("%w: root does not match commitment version %d",
			proofbackend.ErrProofVerificationFailed, version)
	}

	return mp.backend.Verify(mp.keys, membershipproof.Public(cm.Root), env.Proof)
}
