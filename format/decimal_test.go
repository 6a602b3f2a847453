package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecimalParseEncodeRoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"-0",
		"1.5",
		"-1.5",
		"123456789012345678901234567890",
		"1e100",
		"-1.23e-45",
		"0.00001",
		"1000000",
	}

	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			d, err := ParseDecimal(text, 1<<20)
			require.NoError(t, err)

			encoded := d.Encode(nil)

			decoded, n, err := DecodeDecimal(encoded, 1<<20)
			require.NoError(t, err)
			require.Equal(t, len(encoded), n)
			require.Equal(t, d.Canonicalize(), decoded.Canonicalize())
		})
	}
}

func TestDecimalCanonicalizeStripsTrailingZeros(t *testing.T) {
	a, err := ParseDecimal("1.2300", 1<<20)
	require.NoError(t, err)

	b, err := ParseDecimal("1.23", 1<<20)
	require.NoError(t, err)

	require.Equal(t, a.Canonicalize(), b.Canonicalize())
}

func TestDecimalIsZero(t *testing.T) {
	for _, text := range []string{"0", "0.0", "-0", "0e10"} {
		d, err := ParseDecimal(text, 1<<20)
		require.NoError(t, err)
		require.True(t, d.IsZero(), "text=%s", text)
	}

	d, err := ParseDecimal("0.1", 1<<20)
	require.NoError(t, err)
	require.False(t, d.IsZero())
}

func TestDecimalJSONStringScientificBoundary(t *testing.T) {
	small, err := ParseDecimal("123.456", 1<<20)
	require.NoError(t, err)
	require.NotContains(t, small.JSONString(), "e")

	huge, err := ParseDecimal("1.23e50", 1<<20)
	require.NoError(t, err)
	require.Contains(t, huge.JSONString(), "e")
}

func TestDecimalRejectsOverMaxDigits(t *testing.T) {
	_, err := ParseDecimal("123456", 3)
	require.Error(t, err)
}
