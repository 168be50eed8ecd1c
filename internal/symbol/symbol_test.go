package symbol

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	s := Random()
	back, err := Parse(s.String())
	require.NoError(t, err)
	require.Equal(t, s, back)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("zz")
	require.Error(t, err)

	_, err = Parse("deadbeef") // 4 bytes, not 16
	require.Error(t, err)
}

func TestBitsMatchFieldValue(t *testing.T) {
	s := Random()
	f := s.Field()
	v := f.BigInt(new(big.Int))

	// Bit(i) must agree with the little-endian bits of the field value.
	for i := 0; i < BitLen; i++ {
		require.Equal(t, uint8(v.Bit(i)), s.Bit(i), "bit %d", i)
	}
}

func TestBitsRecompose(t *testing.T) {
	s := Random()
	bits := s.Bits()

	v := new(big.Int)
	for i := BitLen - 1; i >= 0; i-- {
		v.Lsh(v, 1)
		v.Or(v, big.NewInt(int64(bits[i])))
	}
	require.Equal(t, new(big.Int).SetBytes(s[:]), v)
}

func TestCommitmentDeterministic(t *testing.T) {
	s := Random()
	require.Equal(t, s.Commitment(), s.Commitment())

	other := Random()
	require.NotEqual(t, s.Commitment(), other.Commitment())
}
