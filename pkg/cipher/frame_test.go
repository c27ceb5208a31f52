package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/stream"
)

// memChannel is a minimal in-memory stream.Channel used to test layers in
// isolation without involving pkg/slice.
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
func (m *memChannel) Skip(pos *bignum.Int) error { return nil }
func (m *memChannel) SkipRelative(delta int64) (bool, error) { return true, nil }
func (m *memChannel) SkipToEOF() error { return nil }
func (m *memChannel) EndOfFile() error { m.eof = true; return nil }
func (m *memChannel) Close() error { return nil }

func TestScramblerRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := NewScrambler(key, 16)
	require.NoError(t, err)
	dec, err := NewScrambler(key, 16)
	require.NoError(t, err)

	under := newMemChannel(stream.WriteOnly, nil)
	w := NewWriteFrame(under, enc)
	clear := []byte("this message spans more than one scrambler block of clear text")
	_, err = w.Write(clear)
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())

	readUnder := newMemChannel(stream.ReadOnly, under.buf.Bytes())
	r := NewReadFrame(readUnder, dec)
	got := make([]byte, 0, len(clear))
	buf := make([]byte, 7)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		if n == 0 {
			break
		}
	}
	require.Equal(t, clear, got)
}

func TestAESBlockRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := NewAESBlock(key, 32)
	require.NoError(t, err)
	dec, err := NewAESBlock(key, 32)
	require.NoError(t, err)

	under := newMemChannel(stream.WriteOnly, nil)
	w := NewWriteFrame(under, enc)
	clear := []byte("exactly sixty-four clear bytes traveling through two AES blocks.")
	_, err = w.Write(clear)
	require.NoError(t, err)
	require.NoError(t, w.EndOfFile())

	readUnder := newMemChannel(stream.ReadOnly, under.buf.Bytes())
	r := NewReadFrame(readUnder, dec)
	got := make([]byte, 0, len(clear))
	buf := make([]byte, 9)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		if n == 0 {
			break
		}
	}
	require.Equal(t, clear, got)
}
