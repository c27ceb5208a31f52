package slice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// drainAll reads a Set to exhaustion, honoring the stream.Channel contract
// that EOF is a short/zero return rather than an error.
func drainAll(t *testing.T, r *Set) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 8)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)
		if n == 0 {
			return out
		}
	}
}

func TestWriteReadRoundTripMultiSlice(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "arc", "dar", 3)

	// payloadCap = 10 - HeaderSize(8) = 2 bytes/slice, forcing several slices.
	w := OpenWrite(store, HeaderSize+2)
	payload := []byte("hello world, this spans many tiny slices")
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.EndOfFile())

	r, err := OpenRead(store)
	require.NoError(t, err)
	require.Equal(t, payload, drainAll(t, r))
}

func TestSingleSliceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "arc", "dar", 1)

	w := OpenWrite(store, 0)
	payload := []byte("hello\n")
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())
	require.True(t, store.Exists(1))
	require.False(t, store.Exists(2))

	r, err := OpenRead(store)
	require.NoError(t, err)
	require.Equal(t, payload, drainAll(t, r))
}
