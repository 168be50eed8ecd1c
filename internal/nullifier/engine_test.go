package nullifier

import (
	"context"
	"math/bits"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privcore/internal/epoch"
	"privcore/internal/keys"
	"privcore/internal/registry"
	"privcore/internal/zkhash"
)

func newTestEngine(t *testing.T, now *time.Time) *Engine {
	t.Helper()
	hier, err := keys.NewHierarchy([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	mgr := epoch.NewManager(time.Hour, epoch.WithClock(func() time.Time { return *now }))
	store, err := registry.NewFileStore(filepath.Join(t.TempDir(), "nullifiers.json"))
	require.NoError(t, err)
	reg, err := registry.New(store, registry.WithFilterCapacity(1024))
	require.NoError(t, err)
	return NewEngine(hier, mgr, reg)
}

func TestGenerateDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)

	nonce := zkhash.RandomBytes(NonceSize)
	n1, used1, ep1, err := e.Generate("election-42", "cast_ballot", nonce)
	require.NoError(t, err)
	require.Equal(t, nonce, used1)

	n2, _, ep2, err := e.Generate("election-42", "cast_ballot", nonce)
	require.NoError(t, err)
	require.Equal(t, ep1, ep2)
	require.Equal(t, n1, n2, "same inputs must derive the same nullifier")
}

func TestGenerateFreshNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)

	n1, nonce1, _, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)
	require.Len(t, nonce1, NonceSize)

	n2, nonce2, _, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)
	require.NotEqual(t, nonce1, nonce2)
	require.NotEqual(t, n1, n2, "fresh nonces must yield distinct nullifiers")
}

func TestGenerateRejectsBadNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)

	_, _, _, err := e.Generate("election-42", "cast_ballot", []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidNonce)
}

func TestVerifyAndRegisterExactlyOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)
	ctx := context.Background()

	n, _, ep, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)

	require.NoError(t, e.VerifyAndRegister(ctx, n, "election-42", ep))
	err = e.VerifyAndRegister(ctx, n, "election-42", ep)
	require.ErrorIs(t, err, ErrDuplicateNullifier)
}

func TestVerifyAndRegisterEpochWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)
	ctx := context.Background()

	n, _, ep, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)

	// One epoch behind our view is inside the default skew window.
	require.NoError(t, e.VerifyAndRegister(ctx, n, "election-42", ep-1))

	// Far outside the window, even after a resync.
	err = e.VerifyAndRegister(ctx, n, "election-42", ep+10)
	require.ErrorIs(t, err, ErrEpochOutOfRange)
}

func TestVerifyAndRegisterResyncsOnRotation(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)
	ctx := context.Background()

	n, _, ep, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)

	// Advance the wall clock two epochs without the engine observing it.
	// The caller's fresher epoch triggers a single resync and succeeds.
	now = now.Add(2 * time.Hour)
	require.NoError(t, e.VerifyAndRegister(ctx, n, "election-42", ep+2))
}

// Nullifiers for the same identity across epochs and contexts must look
// unrelated. Hamming distance between the derived values should hover near
// half the bits.
func TestUnlinkabilityAcrossEpochsAndContexts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)

	nonce := zkhash.RandomBytes(NonceSize)
	base, _, ep, err := e.Generate("election-42", "cast_ballot", nonce)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	next, _, ep2, err := e.Generate("election-42", "cast_ballot", nonce)
	require.NoError(t, err)
	require.Equal(t, ep+1, ep2)

	other, _, _, err := e.Generate("forum-77", "cast_ballot", nonce)
	require.NoError(t, err)

	for _, pair := range [][2]Nullifier{{base, next}, {base, other}} {
		d := 0
		for i := range pair[0] {
			d += bits.OnesCount8(pair[0][i] ^ pair[1][i])
		}
		require.Greater(t, d, 64, "nullifiers should differ in far more than a few bits")
	}
}

// The voting scenario: cast_ballot in election-42 is accepted once in epoch
// 100 and again in epoch 101, because each epoch opens a fresh window.
func TestScenarioOneBallotPerEpoch(t *testing.T) {
	start := time.Unix(0, 0).Add(100 * time.Hour)
	now := start
	e := newTestEngine(t, &now)
	ctx := context.Background()

	n100, _, ep, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100), ep)
	require.NoError(t, e.VerifyAndRegister(ctx, n100, "election-42", ep))
	require.ErrorIs(t, e.VerifyAndRegister(ctx, n100, "election-42", ep), ErrDuplicateNullifier)

	now = start.Add(time.Hour)
	n101, _, ep, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(101), ep)
	require.NotEqual(t, n100, n101)
	require.NoError(t, e.VerifyAndRegister(ctx, n101, "election-42", ep))
}

func TestActionDigestStable(t *testing.T) {
	require.Equal(t, ActionDigest("cast_ballot"), ActionDigest("cast_ballot"))
	require.NotEqual(t, ActionDigest("cast_ballot"), ActionDigest("post_message"))
}

func TestParseRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(t, &now)

	n, _, _, err := e.Generate("election-42", "cast_ballot", nil)
	require.NoError(t, err)

	back, err := Parse(n.String())
	require.NoError(t, err)
	require.Equal(t, n, back)

	_, err = Parse("not-hex")
	require.Error(t, err)
}
