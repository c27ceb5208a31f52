package bignum

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 2, 255, 256, 1 << 20, 1<<32 - 1, 1 << 32, 1<<63 + 7}
	for _, v := range values {
		n := FromUint64(v)
		var buf bytes.Buffer
		require.NoError(t, n.Dump(&buf))

		got, err := Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, 0, n.Cmp(got), "round trip mismatch for %d", v)
	}
}

func TestRoundTripLarge(t *testing.T) {
	// a value well past 2^64 to exercise the "archives may exceed 2^64
	// bytes logically" contract.
	big1 := FromUint64(1 << 63)
	huge := big1.Mul(big1).Mul(FromUint64(4))

	var buf bytes.Buffer
	require.NoError(t, huge.Dump(&buf))
	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(got))
}

func TestDivMod(t *testing.T) {
	a := FromUint64(17)
	b := FromUint64(5)
	q, r, err := a.DivMod(b)
	require.NoError(t, err)

	qv, _ := q.Uint64()
	rv, _ := r.Uint64()
	assert.Equal(t, uint64(3), qv)
	assert.Equal(t, uint64(2), rv)

	reconstructed := q.Mul(b).Add(r)
	assert.Equal(t, 0, a.Cmp(reconstructed))
}

func TestDivByZero(t *testing.T) {
	_, _, err := FromUint64(1).DivMod(Zero())
	assert.Error(t, err)
}

func TestSubUnderflow(t *testing.T) {
	_, err := FromUint64(1).Sub(FromUint64(2))
	assert.Error(t, err)
}

func TestUnstackSaturates(t *testing.T) {
	n := FromUint64(10)
	got := n.Unstack(4)
	assert.Equal(t, uint64(4), got)
	rem, ok := n.Uint64()
	require.True(t, ok)
	assert.Equal(t, uint64(6), rem)

	got = n.Unstack(100)
	assert.Equal(t, uint64(6), got)
	assert.True(t, n.IsZero())
}

func TestNormalizationStripsLeadingZeroGroups(t *testing.T) {
	small := FromUint64(1)
	var buf bytes.Buffer
	require.NoError(t, small.Dump(&buf))
	// one marker byte plus exactly one 4-byte group.
	assert.Equal(t, 1+groupSize, buf.Len())
}
