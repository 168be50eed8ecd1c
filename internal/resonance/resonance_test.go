package resonance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"privcore/internal/proofbackend"
	"privcore/internal/symbol"
)

func TestScoreBounds(t *testing.T) {
	a := symbol.Random()

	require.Equal(t, 1.0, Score(a, a), "a symbol resonates fully with itself")

	var inv symbol.Symbol
	for i := range a {
		inv[i] = ^a[i]
	}
	require.Equal(t, 0.0, Score(a, inv), "complementary symbols share no bits")
}

func TestScoreSymmetric(t *testing.T) {
	for i := 0; i < 16; i++ {
		a, b := symbol.Random(), symbol.Random()
		require.Equal(t, Score(a, b), Score(b, a))
	}
}

func TestScoreSingleBitFlip(t *testing.T) {
	a := symbol.Random()
	b := a
	b[0] ^= 0x80

	want := float64(symbol.BitLen-1) / float64(symbol.BitLen)
	require.InDelta(t, want, Score(a, b), 1e-12)
}

func TestCompareRawPolicy(t *testing.T) {
	c := NewComparator()
	a, b := symbol.Random(), symbol.Random()

	res, err := c.Compare(context.Background(), a, b, PolicyRaw, 0)
	require.NoError(t, err)
	require.Equal(t, PolicyRaw, res.Policy)
	require.NotNil(t, res.Score)
	require.Equal(t, Score(a, b), *res.Score)
	require.Nil(t, res.Passes)
	require.Nil(t, res.Proof)
}

func TestCompareThresholdPolicy(t *testing.T) {
	c := NewComparator()
	a := symbol.Random()

	res, err := c.Compare(context.Background(), a, a, PolicyThreshold, 0.9)
	require.NoError(t, err)
	require.Equal(t, PolicyThreshold, res.Policy)
	require.NotNil(t, res.Passes)
	require.True(t, *res.Passes)
	require.Nil(t, res.Score, "threshold policy must not leak the raw score")

	var inv symbol.Symbol
	for i := range a {
		inv[i] = ^a[i]
	}
	res, err = c.Compare(context.Background(), a, inv, PolicyThreshold, 0.9)
	require.NoError(t, err)
	require.NotNil(t, res.Passes)
	require.False(t, *res.Passes)
	require.Nil(t, res.Proof, "a failing comparison carries no proof")
}

// The wire form must state disclosed values explicitly even at their zero
// values: a raw score of exactly 0 and a failing pass bit both appear.
func TestResultWireFormExplicit(t *testing.T) {
	c := NewComparator()
	a := symbol.Random()
	var inv symbol.Symbol
	for i := range a {
		inv[i] = ^a[i]
	}

	raw, err := c.Compare(context.Background(), a, inv, PolicyRaw, 0)
	require.NoError(t, err)
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.Contains(t, string(data), `"score":0`)
	require.NotContains(t, string(data), `"passes"`)

	thr, err := c.Compare(context.Background(), a, inv, PolicyThreshold, 0.9)
	require.NoError(t, err)
	data, err = json.Marshal(thr)
	require.NoError(t, err)
	require.Contains(t, string(data), `"passes":false`)
	require.NotContains(t, string(data), `"score"`)
}

func TestCompareRejectsBadThreshold(t *testing.T) {
	c := NewComparator()
	a, b := symbol.Random(), symbol.Random()

	_, err := c.Compare(context.Background(), a, b, PolicyThreshold, 1.5)
	require.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = c.Compare(context.Background(), a, b, PolicyThreshold, -0.1)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestBitThresholdRounding(t *testing.T) {
	require.Equal(t, 0, bitThreshold(0))
	require.Equal(t, symbol.BitLen, bitThreshold(1))
	require.Equal(t, 64, bitThreshold(0.5))
	// 0.7 * 128 = 89.6, so 90 matching bits are required.
	require.Equal(t, 90, bitThreshold(0.7))
}

// Full prove/verify cycle through the SNARK backend. Skipped in -short runs
// because the one-time Groth16 setup takes tens of seconds.
func TestThresholdProofEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping SNARK setup in short mode")
	}
	backend := proofbackend.NewGroth16Backend(t.TempDir())
	prover := proofbackend.NewProver(backend, 1)
	defer prover.Close()

	c := NewComparator()
	require.NoError(t, c.EnableProofs(backend, prover))

	a := symbol.Random()
	b := a
	b[15] ^= 0x01 // one low bit apart, well above any reasonable cutoff

	res, err := c.Compare(context.Background(), a, b, PolicyThreshold, 0.9)
	require.NoError(t, err)
	require.NotNil(t, res.Passes)
	require.True(t, *res.Passes)
	require.NotNil(t, res.Proof)

	require.NoError(t, c.VerifyThreshold(res.Proof))

	// A tampered threshold must fail verification.
	res.Proof.PublicInputs["threshold"] = symbol.BitLen
	err = c.VerifyThreshold(res.Proof)
	require.ErrorIs(t, err, proofbackend.ErrProofVerificationFailed)
}
