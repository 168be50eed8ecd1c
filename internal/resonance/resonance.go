// resonance.go - Privacy-preserving similarity between identity symbols.
//
// The resonance score between two 128-bit symbols is the fraction of
// agreeing bit positions, a value in [0, 1]. Identical symbols score 1,
// complementary symbols score 0, and unrelated random symbols hover near
// 0.5. Under the threshold policy the comparator discloses only whether the
// score clears a cutoff, backed by a zero-knowledge proof over the two
// symbol commitments.

package resonance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"

	"github.com/rs/zerolog"

	"privcore/internal/circuits/resonanceproof"
	"privcore/internal/proofbackend"
	"privcore/internal/symbol"
)

// Policy selects how much a comparison discloses.
type Policy int

const (
	// PolicyThreshold discloses a single bit (score >= cutoff) plus a proof.
	// This is the default.
	PolicyThreshold Policy = iota
	// PolicyRaw discloses the exact score. Both parties must opt in.
	PolicyRaw
)

// ErrInvalidThreshold signals a cutoff outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold must lie in [0, 1]")

// ErrProofsDisabled signals a proof-bearing comparison without a configured
// backend.
var ErrProofsDisabled = errors.New("proof backend not configured")

// Score returns the fraction of bit positions on which a and b agree.
func Score(a, b symbol.Symbol) float64 {
	matches := 0
	for i := 0; i < symbol.ByteLen; i++ {
		matches += bits.OnesCount8(^(a[i] ^ b[i]))
	}
	return float64(matches) / float64(symbol.BitLen)
}

// Result is the outcome of one comparison. Under PolicyRaw only Score is
// set; under PolicyThreshold, Passes and (when proofs are enabled) Proof.
// Score and Passes are pointers so the wire form states them explicitly
// when the policy discloses them, even at their zero values, and omits
// them entirely otherwise.
type Result struct {
	Policy    Policy                 `json:"policy"`
	Score     *float64               `json:"score,omitempty"`
	Threshold float64                `json:"threshold,omitempty"`
	Passes    *bool                  `json:"passes,omitempty"`
	Proof     *proofbackend.Envelope `json:"proof,omitempty"`
}

// Comparator evaluates resonance between symbols under a disclosure policy.
type Comparator struct {
	log zerolog.Logger

	backend   proofbackend.Backend
	prover    *proofbackend.Prover
	proofKeys proofbackend.Keys
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Comparator) { c.log = log }
}

// NewComparator creates a comparator. Without EnableProofs, threshold
// comparisons return the pass bit unproven.
func NewComparator(opts ...Option) *Comparator {
	c := &Comparator{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnableProofs compiles the threshold circuit and attaches the proof
// backend and prover pool.
func (c *Comparator) EnableProofs(backend proofbackend.Backend, prover *proofbackend.Prover) error {
	pk, err := backend.Compile(resonanceproof.CircuitID, &resonanceproof.CircuitResonance{})
	if err != nil {
		return err
	}
	c.backend = backend
	c.prover = prover
	c.proofKeys = pk
	return nil
}

// Compare evaluates two symbols under the given policy. Thresholds are
// fractions in [0, 1]; internally they map onto a matching-bit count.
// Only a passing comparison carries a proof: the circuit attests the pass
// direction, and a failing result returns the pass bit unproven.
func (c *Comparator) Compare(ctx context.Context, a, b symbol.Symbol, policy Policy, threshold float64) (*Result, error) {
	if policy == PolicyRaw {
		score := Score(a, b)
		return &Result{Policy: PolicyRaw, Score: &score}, nil
	}
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	minBits := bitThreshold(threshold)
	passes := Score(a, b)*symbol.BitLen >= float64(minBits)
	res := &Result{Policy: PolicyThreshold, Threshold: threshold, Passes: &passes}

	if !passes || c.backend == nil {
		return res, nil
	}

	assignment := resonanceproof.Assignment(a, b, minBits)
	proof, err := c.prover.Submit(ctx, c.proofKeys, assignment).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("resonance proof: %w", err)
	}
	cmA := a.Commitment()
	cmB := b.Commitment()
	publics := map[string]any{
		"commitment_a": hex.EncodeToString(cmA[:]),
		"commitment_b": hex.EncodeToString(cmB[:]),
		"threshold":    minBits,
	}
	res.Proof = proofbackend.NewEnvelope(resonanceproof.CircuitID, c.backend.Tag(), publics, proof, "", 0)
	return res, nil
}

// VerifyThreshold checks a threshold-comparison envelope against its public
// commitments and cutoff.
func (c *Comparator) VerifyThreshold(env *proofbackend.Envelope) error {
	if c.backend == nil {
		return ErrProofsDisabled
	}
	cmA, err := envelopeCommitment(env, "commitment_a")
	if err != nil {
		return err
	}
	cmB, err := envelopeCommitment(env, "commitment_b")
	if err != nil {
		return err
	}
	minBits, err := env.PublicUint("threshold")
	if err != nil {
		return fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	if minBits > symbol.BitLen {
		return fmt.Errorf("%w: threshold above symbol width", proofbackend.ErrProofVerificationFailed)
	}
	if err := c.backend.Verify(c.proofKeys, resonanceproof.Public(cmA, cmB, int(minBits)), env.Proof); err != nil {
		c.log.Error().Str("circuit", env.CircuitID).Msg("resonance threshold proof rejected")
		return err
	}
	return nil
}

// bitThreshold maps a fractional cutoff onto the smallest matching-bit
// count that satisfies it.
func bitThreshold(threshold float64) int {
	n := int(threshold * symbol.BitLen)
	if float64(n) < threshold*symbol.BitLen {
		n++
	}
	if n > symbol.BitLen {
		n = symbol.BitLen
	}
	return n
}

func envelopeCommitment(env *proofbackend.Envelope, key string) ([32]byte, error) {
	var cm [32]byte
	s, err := env.PublicString(key)
	if err != nil {
		return cm, fmt.Errorf("%w: %v", proofbackend.ErrProofVerificationFailed, err)
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(cm) {
		return cm, fmt.Errorf("%w: bad %s", proofbackend.ErrProofVerificationFailed, key)
	}
	copy(cm[:], b)
	return cm, nil
}
