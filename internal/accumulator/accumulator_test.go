package accumulator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"privcore/internal/symbol"
)

func TestMembershipRoundTrip(t *testing.T) {
	acc := New()
	sym := symbol.Random()

	up, err := acc.Add(sym)
	require.NoError(t, err)
	require.Equal(t, uint64(1), up.Version)
	require.NotEqual(t, up.PrevRoot, up.NewRoot)

	w, err := acc.ProveMembership(sym)
	require.NoError(t, err)

	ok, err := Verify(acc.Current(), sym, w)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStaleWitnessRejected(t *testing.T) {
	acc := New()
	x := symbol.Random()

	// Identity X enrolled at version 3.
	_, err := acc.Add(symbol.Random())
	require.NoError(t, err)
	_, err = acc.Add(symbol.Random())
	require.NoError(t, err)
	up, err := acc.Add(x)
	require.NoError(t, err)
	require.Equal(t, uint64(3), up.Version)

	w3, err := acc.ProveMembership(x)
	require.NoError(t, err)
	require.Equal(t, uint64(3), w3.Version)

	c3 := acc.Current()
	ok, err := Verify(c3, x, w3)
	require.NoError(t, err)
	require.True(t, ok, "witness generated at v3 must verify against commitment v3")

	// A later enrollment advances the commitment to v4.
	_, err = acc.Add(symbol.Random())
	require.NoError(t, err)
	c4 := acc.Current()
	require.Equal(t, uint64(4), c4.Version)

	_, err = Verify(c4, x, w3)
	require.ErrorIs(t, err, ErrStaleWitness, "a v3 witness must be explicitly rejected against v4")

	// A refreshed witness verifies again.
	w4, err := acc.ProveMembership(x)
	require.NoError(t, err)
	ok, err = Verify(c4, x, w4)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveRevokesMembership(t *testing.T) {
	acc := New()
	sym := symbol.Random()
	_, err := acc.Add(sym)
	require.NoError(t, err)

	w, err := acc.ProveMembership(sym)
	require.NoError(t, err)

	_, err = acc.Remove(sym)
	require.NoError(t, err)

	_, err = acc.ProveMembership(sym)
	require.ErrorIs(t, err, ErrMembershipNotFound)

	// The pre-removal witness no longer matches any live commitment.
	_, err = Verify(acc.Current(), sym, w)
	require.ErrorIs(t, err, ErrStaleWitness)

	_, err = acc.Remove(sym)
	require.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestDuplicateEnrollmentRejected(t *testing.T) {
	acc := New()
	sym := symbol.Random()
	_, err := acc.Add(sym)
	require.NoError(t, err)
	_, err = acc.Add(sym)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestWrongSymbolFailsVerification(t *testing.T) {
	acc := New()
	member := symbol.Random()
	_, err := acc.Add(member)
	require.NoError(t, err)

	w, err := acc.ProveMembership(member)
	require.NoError(t, err)

	// A valid path cannot vouch for a different symbol.
	ok, err := Verify(acc.Current(), symbol.Random(), w)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHistoricalWitnessGeneration(t *testing.T) {
	acc := New()
	sym := symbol.Random()
	up, err := acc.Add(sym)
	require.NoError(t, err)
	pinned := up.Version

	_, err = acc.Add(symbol.Random())
	require.NoError(t, err)

	w, err := acc.ProveMembershipAt(sym, pinned)
	require.NoError(t, err)
	c, err := acc.CommitmentAt(pinned)
	require.NoError(t, err)
	ok, err := Verify(c, sym, w)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWitnessJSONRoundTrip(t *testing.T) {
	acc := New()
	sym := symbol.Random()
	_, err := acc.Add(sym)
	require.NoError(t, err)
	w, err := acc.ProveMembership(sym)
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	var decoded Witness
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, *w, decoded)

	ok, err := Verify(acc.Current(), sym, &decoded)
	require.NoError(t, err)
	require.True(t, ok)
}
