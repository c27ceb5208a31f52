package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/stream"
)

// memChannel is a minimal in-memory stream.Channel, mirroring the one in
// pkg/cipher, for exercising a layer in isolation from pkg/slice.
type memChannel struct {
	stream.Base
	buf *bytes.Buffer
	eof bool
}

func newMemChannel(mode stream.Mode, initial []byte) *memChannel {
	return &memChannel{Base: stream.NewBase(mode), buf: bytes.NewBuffer(initial)}
}

func (m *memChannel) Read(p []byte) (int, error) {
	n, _ := m.buf.Read(p)
	m.Advance(n, p)
	return n, nil
}
func (m *memChannel) Write(p []byte) (int, error) {
	n, err := m.buf.Write(p)
	m.Advance(n, p)
	return n, err
}
func (m *memChannel) Skip(pos *bignum.Int) error            { return nil }
func (m *memChannel) SkipRelative(delta int64) (bool, error) { return true, nil }
func (m *memChannel) SkipToEOF() error                       { return nil }
func (m *memChannel) EndOfFile() error                       { m.eof = true; return nil }
func (m *memChannel) Close() error                            { return nil }

func roundTrip(t *testing.T, algo Algorithm) {
	t.Helper()
	codec, err := New(algo)
	require.NoError(t, err)

	under := newMemChannel(stream.WriteOnly, nil)
	w := NewWriteFrame(under, codec, 0)
	clear := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to give the compressor something to chew on")
	_, err = w.Write(clear)
	require.NoError(t, err)
	require.NoError(t, w.SyncWrite())
	_, err = w.Write([]byte(" and a second segment after an explicit sync point"))
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())

	readUnder := newMemChannel(stream.ReadOnly, under.buf.Bytes())
	r := NewReadFrame(readUnder, codec)
	var got []byte
	buf := make([]byte, 11)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		if n == 0 {
			break
		}
	}
	require.Equal(t, append(append([]byte{}, clear...), []byte(" and a second segment after an explicit sync point")...), got)
}

func TestRoundTripAllAlgorithms(t *testing.T) {
	for _, algo := range []Algorithm{None, Gzip, PGzip, BZip2, LZO, XZ, Zstd} {
		algo := algo
		t.Run(algo.String(), func(t *testing.T) {
			roundTrip(t, algo)
		})
	}
}

func TestSkipJumpsToKnownSegmentBoundary(t *testing.T) {
	codec, err := New(Gzip)
	require.NoError(t, err)

	under := newMemChannel(stream.WriteOnly, nil)
	w := NewWriteFrame(under, codec, 0)
	first := []byte("segment one holds this text")
	second := []byte("segment two holds this other text")
	_, err = w.Write(first)
	require.NoError(t, err)
	require.NoError(t, w.SyncWrite())
	_, err = w.Write(second)
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())

	readUnder := newMemChannel(stream.ReadOnly, under.buf.Bytes())
	r := NewReadFrame(readUnder, codec)

	require.NoError(t, r.Skip(bignum.FromUint64(uint64(len(first)))))
	got := make([]byte, len(second))
	n, err := r.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(second), n)
	require.Equal(t, second, got)
}

func TestCorruptSegmentDoesNotWedgeLaterReads(t *testing.T) {
	codec, err := New(Gzip)
	require.NoError(t, err)

	under := newMemChannel(stream.WriteOnly, nil)
	w := NewWriteFrame(under, codec, 0)
	first := []byte("this segment gets corrupted")
	second := []byte("this segment must still decode cleanly")
	_, err = w.Write(first)
	require.NoError(t, err)
	require.NoError(t, w.SyncWrite())
	_, err = w.Write(second)
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())

	raw := under.buf.Bytes()
	// Flip a byte well past the bignum length prefix and the gzip header
	// (5 + 10 bytes), inside the first segment's deflate body, so only
	// that segment's checksum fails and the length-prefix framing stays
	// intact for the segment boundary after it.
	corrupted := append([]byte{}, raw...)
	corrupted[20] ^= 0xFF

	readUnder := newMemChannel(stream.ReadOnly, corrupted)
	r := NewReadFrame(readUnder, codec)
	buf := make([]byte, 64)

	_, err = r.Read(buf)
	require.Error(t, err)

	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, second, buf[:n])
}
