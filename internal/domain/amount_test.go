package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	for _, tc := range []struct {
		desc string
		raw  string
		want uint64
		err  error
	}{
		{desc: "plain", raw: "1000", want: 1000},
		{desc: "zero", raw: "0", want: 0},
		{desc: "padded", raw: " 42 ", want: 42},
		{desc: "max", raw: "18446744073709551615", want: math.MaxUint64},
		{desc: "negative", raw: "-5", err: ErrInvalidAmount},
		{desc: "plus sign", raw: "+5", err: ErrInvalidAmount},
		{desc: "fraction", raw: "1.5", err: ErrInvalidAmount},
		{desc: "empty", raw: "", err: ErrInvalidAmount},
		{desc: "too large", raw: "18446744073709551616", err: ErrOverflow},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseAmount(tc.raw)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := AddAmount(1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, sum)

	_, err = AddAmount(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrOverflow)

	diff, err := SubAmount(5, 5)
	require.NoError(t, err)
	require.Zero(t, diff)

	_, err = SubAmount(4, 5)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDerivedIDs(t *testing.T) {
	a := PoolID("issuer", "acme")
	require.Len(t, a, 64)
	require.Equal(t, a, PoolID("issuer", "acme"))
	require.NotEqual(t, a, PoolID("issuer", "acme2"))
	// separator keeps ("ab","c") and ("a","bc") apart
	require.NotEqual(t, PoolID("ab", "c"), PoolID("a", "bc"))

	g := GrantID(a, "alice")
	require.NotEqual(t, g, GrantID(a, "bob"))
	require.NotEqual(t, g, a)
}
