package keys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"privcore/internal/zkhash"
)

func TestDerivationDeterminism(t *testing.T) {
	master := zkhash.RandomBytes(32)
	h1, err := NewHierarchy(master)
	require.NoError(t, err)
	h2, err := NewHierarchy(master)
	require.NoError(t, err)

	ck1, err := h1.ContextKey("voting")
	require.NoError(t, err)
	ck2, err := h2.ContextKey("voting")
	require.NoError(t, err)
	require.Equal(t, ck1, ck2, "same (master, context) must derive the same key")

	ek1, err := h1.EpochKey("voting", 100)
	require.NoError(t, err)
	ek2, err := h2.EpochKey("voting", 100)
	require.NoError(t, err)
	require.Equal(t, ek1, ek2, "same (context, epoch) must derive the same key")
}

func TestDomainSeparation(t *testing.T) {
	h, err := NewHierarchy(zkhash.RandomBytes(32))
	require.NoError(t, err)

	ckVote, err := h.ContextKey("voting")
	require.NoError(t, err)
	ckMsg, err := h.ContextKey("messaging")
	require.NoError(t, err)
	require.NotEqual(t, ckVote, ckMsg)

	ek100, err := h.EpochKey("voting", 100)
	require.NoError(t, err)
	ek101, err := h.EpochKey("voting", 101)
	require.NoError(t, err)
	require.NotEqual(t, ek100, ek101)

	ekOther, err := h.EpochKey("messaging", 100)
	require.NoError(t, err)
	require.NotEqual(t, ek100, ekOther)
}

func TestShortMasterRejected(t *testing.T) {
	_, err := NewHierarchy(zkhash.RandomBytes(16))
	require.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestEvictBefore(t *testing.T) {
	h, err := NewHierarchy(zkhash.RandomBytes(32))
	require.NoError(t, err)

	for e := uint64(10); e < 15; e++ {
		_, err := h.EpochKey("voting", e)
		require.NoError(t, err)
	}
	require.Equal(t, 3, h.EvictBefore(13))

	// Eviction removes only the cache; re-derivation still yields the same key.
	before, err := h.EpochKey("voting", 10)
	require.NoError(t, err)
	h.EvictBefore(11)
	after, err := h.EpochKey("voting", 10)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDestroy(t *testing.T) {
	h, err := NewHierarchy(zkhash.RandomBytes(32))
	require.NoError(t, err)
	_, err = h.ContextKey("voting")
	require.NoError(t, err)

	h.Destroy()
	_, err = h.ContextKey("voting")
	require.ErrorIs(t, err, ErrKeyUnavailable)
	_, err = h.EpochKey("voting", 1)
	require.ErrorIs(t, err, ErrKeyUnavailable)
}
