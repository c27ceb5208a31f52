package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/stream"
)

// seekableMemChannel is an in-memory stream.Channel with real absolute
// Skip/SkipToEOF support, needed here (unlike most layer tests) because
// LocateTerminator genuinely seeks backward from end-of-file.
type seekableMemChannel struct {
	stream.Base
	data []byte
	cur  int
}

func newSeekableMemChannel(mode stream.Mode, initial []byte) *seekableMemChannel {
	return &seekableMemChannel{Base: stream.NewBase(mode), data: append([]byte(nil), initial...)}
}

func (m *seekableMemChannel) Read(p []byte) (int, error) {
	n := copy(p, m.data[m.cur:])
	m.cur += n
	m.Advance(n, p[:n])
	return n, nil
}

func (m *seekableMemChannel) Write(p []byte) (int, error) {
	m.data = append(m.data[:m.cur], p...)
	m.cur += len(p)
	m.Advance(len(p), p)
	return len(p), nil
}

func (m *seekableMemChannel) Skip(pos *bignum.Int) error {
	v, _ := pos.Uint64()
	m.cur = int(v)
	m.SetPosition(pos)
	return nil
}

func (m *seekableMemChannel) SkipRelative(delta int64) (bool, error) {
	next := m.cur + int(delta)
	if next < 0 {
		next = 0
	}
	m.cur = next
	m.SetPosition(bignum.FromUint64(uint64(m.cur)))
	return true, nil
}

func (m *seekableMemChannel) SkipToEOF() error {
	m.cur = len(m.data)
	m.SetPosition(bignum.FromUint64(uint64(m.cur)))
	return nil
}

func (m *seekableMemChannel) EndOfFile() error { m.MarkEndOfFile(); return nil }
func (m *seekableMemChannel) Close() error     { return nil }

func TestHeaderWriteReadRoundTrip(t *testing.T) {
	ch := newSeekableMemChannel(stream.WriteOnly, nil)
	h := NewHeader(compress.Gzip, "dar -c arc -R /tmp/in", FlagEARootSaved|FlagEAUserSaved)
	require.NoError(t, Write(ch, h))

	back, err := Read(newSeekableMemChannel(stream.ReadOnly, ch.data), nil)
	require.NoError(t, err)
	require.Equal(t, h.Edition, back.Edition)
	require.Equal(t, compress.Gzip, back.Compression)
	require.Equal(t, h.CommandLine, back.CommandLine)
	require.Equal(t, h.Flags, back.Flags)
	require.Equal(t, h.InstanceID, back.InstanceID)
}

func TestHeaderReadRejectsFutureEditionWithoutConfirm(t *testing.T) {
	ch := newSeekableMemChannel(stream.WriteOnly, nil)
	h := NewHeader(compress.None, "", 0)
	h.Edition = "099"
	require.NoError(t, Write(ch, h))

	_, err := Read(newSeekableMemChannel(stream.ReadOnly, ch.data), nil)
	require.Error(t, err)
}

func TestHeaderReadAcceptsFutureEditionWhenConfirmed(t *testing.T) {
	ch := newSeekableMemChannel(stream.WriteOnly, nil)
	h := NewHeader(compress.None, "", 0)
	h.Edition = "099"
	require.NoError(t, Write(ch, h))

	confirm := func(Edition) (bool, error) { return true, nil }
	back, err := Read(newSeekableMemChannel(stream.ReadOnly, ch.data), confirm)
	require.NoError(t, err)
	require.Equal(t, Edition("099"), back.Edition)
}

func TestTerminatorRoundTrip(t *testing.T) {
	ch := newSeekableMemChannel(stream.ReadWrite, nil)
	_, err := ch.Write([]byte("fake header and catalogue bytes go here"))
	require.NoError(t, err)
	catalogStart := bignum.FromUint64(3)
	require.NoError(t, WriteTerminator(ch, catalogStart))

	got, err := LocateTerminator(ch)
	require.NoError(t, err)
	gv, _ := got.Uint64()
	require.EqualValues(t, 3, gv)
}

func TestLocateTerminatorRejectsUnfinalizedArchive(t *testing.T) {
	ch := newSeekableMemChannel(stream.ReadWrite, []byte("not a real terminator at all"))
	_, err := LocateTerminator(ch)
	require.Error(t, err)
}
