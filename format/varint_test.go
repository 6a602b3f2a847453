package format

import (
	"math"
	"testing"

	"github.com/iambrandonn/jac/errs"
	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 255, 16384, 1 << 32, math.MaxUint64}

	for _, v := range cases {
		encoded := EncodeUvarint(v)
		require.LessOrEqual(t, len(encoded), maxVarintLen)
		require.GreaterOrEqual(t, len(encoded), 1)

		decoded, n, err := DecodeUvarint(encoded)
		require.NoError(t, err)
		require.Equal(t, v, decoded)
		require.Equal(t, len(encoded), n)
	}
}

func TestUvarintSingleByteForSmallValues(t *testing.T) {
	for v := uint64(0); v < 128; v++ {
		require.Len(t, EncodeUvarint(v), 1)
	}
}

func TestDecodeUvarintRejectsTruncatedInput(t *testing.T) {
	_, _, err := DecodeUvarint([]byte{0x80, 0x80})
	require.ErrorIs(t, err, errs.ErrUnexpectedEof)
}

func TestDecodeUvarintRejectsOverlongInput(t *testing.T) {
	overlong := make([]byte, 11)
	for i := range overlong {
		overlong[i] = 0x80
	}
	overlong[len(overlong)-1] = 0x01

	_, _, err := DecodeUvarint(overlong)
	require.Error(t, err)
}

func TestZigzagRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 2, -2, math.MaxInt64, math.MinInt64, 1000000, -1000000}

	for _, v := range cases {
		u := ZigzagEncode(v)
		got := ZigzagDecode(u)
		require.Equal(t, v, got)

		if v > 0 {
			require.Greater(t, got, int64(0))
		} else if v < 0 {
			require.Less(t, got, int64(0))
		}
	}
}
