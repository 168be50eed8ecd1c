// backend.go - Pluggable zero-knowledge proof backend contract.
//
// The nullifier engine, membership accumulator, and resonance comparator all
// talk to this interface instead of embedding proof logic, so the concrete
// system (Groth16 today, a STARK tomorrow) is swappable without touching the
// consumers.

package proofbackend

import (
	"context"
	"errors"

	"github.com/consensys/gnark/frontend"
)

// ErrProofVerificationFailed is a security event, not merely a bug: callers
// must log it and reject the associated action. Never coerced to an allow.
var ErrProofVerificationFailed = errors.New("proof verification failed")

// ErrSetupFailure signals that circuit compilation or key setup failed.
// Fatal; the process cannot continue without its circuits.
var ErrSetupFailure = errors.New("proof backend setup failed")

// Keys is an opaque handle to the compiled artifacts of one circuit
// (constraint system, proving key, verifying key).
type Keys interface {
	CircuitID() string
}

// Backend is the abstract prover/verifier.
//
// Prove is CPU-bound and expected to take seconds; run it through a Prover
// pool rather than on a request path. Verify is fast and may run inline.
type Backend interface {
	// Tag identifies the proof system family for envelope metadata.
	Tag() string

	// Compile builds the circuit and produces its proving/verifying keys.
	Compile(circuitID string, circuit frontend.Circuit) (Keys, error)

	// Prove generates a proof for a full assignment (public + private).
	Prove(ctx context.Context, keys Keys, assignment frontend.Circuit) ([]byte, error)

	// Verify checks a proof against the public part of an assignment,
	// returning ErrProofVerificationFailed on any mismatch.
	Verify(keys Keys, public frontend.Circuit, proof []byte) error
}
