// engine.go - Nullifier derivation, duplicate detection, and ownership proofs.
//
// A nullifier is a one-time, context-bound token:
//
//	nullifier = MiMC(EpochKey(context, epoch), MiMC(action), nonce)
//
// The same (identity, context, epoch, action, nonce) always yields the same
// nullifier, giving exactly-once semantics; different contexts or epochs
// yield statistically unlinkable values for the same holder.

package nullifier

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"privcore/internal/circuits/nullifierproof"
	"privcore/internal/epoch"
	"privcore/internal/keys"
	"privcore/internal/proofbackend"
	"privcore/internal/registry"
	"privcore/internal/zkhash"
)

// Size is the fixed nullifier length in bytes (256 bits).
const Size = registry.NullifierSize

// NonceSize is the fresh-nonce length in bytes (128 bits). The nonce keeps
// third parties from precomputing a nullifier before its holder uses it.
const NonceSize = 16

// ErrDuplicateNullifier re-exports the registry sentinel for callers that
// only import this package.
var ErrDuplicateNullifier = registry.ErrDuplicateNullifier

// ErrEpochOutOfRange signals a caller epoch outside the clock-skew window.
// The caller should refresh its epoch view and retry.
var ErrEpochOutOfRange = errors.New("epoch outside the accepted clock-skew window")

// ErrInvalidNonce signals a caller-supplied nonce of the wrong length.
var ErrInvalidNonce = errors.New("nonce must be 16 bytes")

// ErrProofsDisabled signals an ownership-proof request without a configured
// proof backend.
var ErrProofsDisabled = errors.New("proof backend not configured")

// Nullifier is a one-time action token.
type Nullifier [Size]byte

// String returns the hex encoding.
func (n Nullifier) String() string { return hex.EncodeToString(n[:]) }

// Parse decodes a nullifier from hex.
func Parse(s string) (Nullifier, error) {
	var n Nullifier
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		return n, fmt.Errorf("invalid nullifier encoding")
	}
	copy(n[:], b)
	return n, nil
}

// ActionDigest maps an action label onto one field element.
func ActionDigest(action string) [Size]byte {
	return zkhash.Sum([]byte(action))
}

// Engine derives and registers nullifiers.
type Engine struct {
	hier   *keys.Hierarchy
	epochs *epoch.Manager
	reg    *registry.Registry
	log    zerolog.Logger

	backend   proofbackend.Backend
	prover    *proofbackend.Prover
	proofKeys proofbackend.Keys
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine wires the engine to its key hierarchy, epoch manager, and
// registry.
func NewEngine(hier *keys.Hierarchy, epochs *epoch.Manager, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{hier: hier, epochs: epochs, reg: reg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnableProofs compiles the nullifier circuit and attaches the proof
// backend and prover pool for ownership proofs.
func (e *Engine) EnableProofs(backend proofbackend.Backend, prover *proofbackend.Prover) error {
	pk, err := backend.Compile(nullifierproof.CircuitID, &nullifierproof.CircuitNullifier{})
	if err != nil {
		return err
	}
	e.backend = backend
	e.prover = prover
	e.proofKeys = pk
	return nil
}

// Generate derives the nullifier for (context, action) under the current
// epoch. A nil nonce requests a fresh random one; the nonce actually used
// is returned alongside the nullifier and epoch.
func (e *Engine) Generate(domain, action string, nonce []byte) (Nullifier, []byte, uint64, error) {
	if nonce == nil {
		nonce = zkhash.RandomBytes(NonceSize)
	}
	if len(nonce) != NonceSize {
		return Nullifier{}, nil, 0, ErrInvalidNonce
	}
	ep := e.epochs.Observe()
	ek, err := e.hier.EpochKey(domain, ep)
	if err != nil {
		return Nullifier{}, nil, 0, err
	}
	digest := ActionDigest(action)
	sum := zkhash.Sum(ek[:], digest[:], nonce)
	return Nullifier(sum), nonce, ep, nil
}

// VerifyAndRegister accepts a nullifier exactly once per (context, epoch).
//
// The caller's epoch must sit within the clock-skew window of ours; on a
// first mismatch the engine resyncs its own epoch view once before failing
// with ErrEpochOutOfRange. A duplicate within the window is rejected with
// ErrDuplicateNullifier. Once registered, the action is committed.
func (e *Engine) VerifyAndRegister(ctx context.Context, n Nullifier, domain string, ep uint64) error {
	cur := e.epochs.Current()
	if !e.epochs.WithinSkew(ep, cur) {
		// Our own view may be behind; resync once before surfacing.
		cur = e.epochs.Observe()
		if !e.epochs.WithinSkew(ep, cur) {
			return fmt.Errorf("%w: caller epoch %d, current %d", ErrEpochOutOfRange, ep, cur)
		}
	}
	rec := &registry.Record{Nullifier: n, Context: domain, Epoch: ep}
	if err := e.reg.Insert(ctx, rec); err != nil {
		if errors.Is(err, registry.ErrDuplicateNullifier) {
			e.log.Warn().
				Str("context", domain).
				Uint64("epoch", ep).
				Str("nullifier", n.String()).
				Msg("duplicate nullifier rejected")
		}
		return err
	}
	e.log.Debug().Str("context", domain).Uint64("epoch", ep).Msg("nullifier registered")
	return nil
}

// ProveOwnership generates a zero-knowledge proof that the nullifier was
// correctly derived for (context, epoch, action) without revealing the
// epoch key or nonce. Proving runs on the prover pool; this call blocks on
// the returned future and honors ctx cancellation.
func (e *Engine) ProveOwnership(ctx context.Context, n Nullifier, domain, action string, nonce []byte, ep uint64) (*proofbackend.Envelope, error) {
	if e.backend == nil {
		return nil, ErrProofsDisabled
	}
	ek, err := e.hier.EpochKey(domain, ep)
	if err != nil {
		return nil, err
	}
	digest := ActionDigest(action)
	assignment := nullifierproof.Assignment(n[:], digest[:], ek[:], nonce)
	proof, err := e.prover.Submit(ctx, e.proofKeys, assignment).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("ownership proof: %w", err)
	}
	publics := map[string]any{
		"nullifier":     n.String(),
		"action_digest": hex.EncodeToString(digest[:]),
	}
	return proofbackend.NewEnvelope(nullifierproof.CircuitID, e.backend.Tag(), publics, proof, domain, ep), nil
}

// VerifyOwnership checks an ownership-proof envelope. Verification failures
// are security events: they are logged and surfaced, never downgraded.
func (e *Engine) VerifyOwnership(env *proofbackend.Envelope) error {
	if e.backend == nil {
		return ErrProofsDisabled
	}
	nHex, err := env.PublicString("nullifier")
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	n, err := Parse(nHex)
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	dHex, err := env.PublicString("action_digest")
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	digest, err := hex.DecodeString(dHex)
	if err != nil {
		return fmt.Errorf("%w: bad action digest", proofbackend.ErrProofVerificationFailed)
	}
	if err := e.backend.Verify(e.proofKeys, nullifierproof.Public(n[:], digest), env.Proof); err != nil {
		e.log.Error().
			Str("context", env.Meta.Context).
			Uint64("epoch", env.Meta.Epoch).
			Str("circuit", env.CircuitID).
			Msg("nullifier ownership proof rejected")
		return err
	}
	return nil
}
