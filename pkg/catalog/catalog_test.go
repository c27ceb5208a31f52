package catalog

import (
	"bytes"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/crc"
	"github.com/dar-go/dar/pkg/stream"
)

// memChannel is a minimal in-memory stream.Channel, mirroring the one in
// pkg/compress and pkg/cipher, for exercising Dump/Read in isolation from
// pkg/slice.
type memChannel struct {
	stream.Base
	buf *bytes.Buffer
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
func (m *memChannel) Skip(pos *bignum.Int) error             { return nil }
func (m *memChannel) SkipRelative(delta int64) (bool, error) { return true, nil }
func (m *memChannel) SkipToEOF() error                       { return nil }
func (m *memChannel) EndOfFile() error                       { return nil }
func (m *memChannel) Close() error                            { return nil }

func buildSampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New()

	require.NoError(t, c.Insert("/", &Entry{Name: "etc", Kind: KindDir, Attr: fuse.Attr{Mode: 0755}}))
	require.NoError(t, c.Insert("/etc", &Entry{
		Name: "passwd", Kind: KindFile, Attr: fuse.Attr{Mode: 0644, Size: 1024, Mtime: 1000},
		DataOffset: bignum.FromUint64(128), DataCRC: crc.NewCRC64(), SavedStatus: Saved,
	}))
	require.NoError(t, c.Insert("/etc", &Entry{Name: "motd", Kind: KindSymlink, Attr: fuse.Attr{Mode: 0777}, Target: "/etc/issue"}))
	require.NoError(t, c.Insert("/", &Entry{Name: "dev-null", Kind: KindCharDevice, Attr: fuse.Attr{Mode: 0666}, Major: 1, Minor: 3}))
	require.NoError(t, c.Insert("/", &Entry{Name: "gone", Kind: KindDeleted, DeletedAt: 1700000000}))

	star := &Star{Attr: fuse.Attr{Mode: 0644, Size: 4096}, DataOffset: bignum.FromUint64(512), SavedStatus: Saved, RefCount: 2}
	etiquette := c.NewEtiquette(star)
	require.NoError(t, c.Insert("/", &Entry{Name: "hardlink-a", Kind: KindHardlinkMirage, Etiquette: etiquette, Star: star}))
	require.NoError(t, c.Insert("/", &Entry{Name: "hardlink-b", Kind: KindHardlinkMirage, Etiquette: etiquette, Star: star}))

	return c
}

func TestDumpReadRoundTrip(t *testing.T) {
	c := buildSampleCatalog(t)

	ch := newMemChannel(stream.WriteOnly, nil)
	require.NoError(t, c.Dump(ch))

	back, err := Read(newMemChannel(stream.ReadOnly, ch.buf.Bytes()))
	require.NoError(t, err)

	passwd, ok := back.Get("/etc/passwd")
	require.True(t, ok)
	require.Equal(t, KindFile, passwd.Kind)
	require.EqualValues(t, 1024, passwd.Attr.Size)
	require.Equal(t, Saved, passwd.SavedStatus)

	motd, ok := back.Get("/etc/motd")
	require.True(t, ok)
	require.Equal(t, "/etc/issue", motd.Target)

	dev, ok := back.Get("/dev-null")
	require.True(t, ok)
	require.EqualValues(t, 1, dev.Major)
	require.EqualValues(t, 3, dev.Minor)

	gone, ok := back.Get("/gone")
	require.True(t, ok)
	require.Equal(t, KindDeleted, gone.Kind)
	require.EqualValues(t, 1700000000, gone.DeletedAt)

	a, ok := back.Get("/hardlink-a")
	require.True(t, ok)
	b, ok := back.Get("/hardlink-b")
	require.True(t, ok)
	require.Equal(t, a.Etiquette, b.Etiquette)
	require.Same(t, a.Star, b.Star)
	require.EqualValues(t, 4096, a.Star.Attr.Size)

	require.Equal(t, c.Stats.TotalEntries, back.Stats.TotalEntries)
}

func TestReadRejectsCorruptedCRC(t *testing.T) {
	c := buildSampleCatalog(t)
	ch := newMemChannel(stream.WriteOnly, nil)
	require.NoError(t, c.Dump(ch))

	raw := ch.buf.Bytes()
	raw[len(raw)-1] ^= 0xff

	_, err := Read(newMemChannel(stream.ReadOnly, raw))
	require.Error(t, err)
}

func TestReadRejectsUnknownSignature(t *testing.T) {
	var payload bytes.Buffer
	writeString(&payload, "x")
	payload.WriteByte(0xEE) // not a member of knownKinds

	fold := crc.NewFold(CRCWidth)
	fold.Update(payload.Bytes())

	ch := newMemChannel(stream.WriteOnly, nil)
	require.NoError(t, bignum.FromUint64(uint64(payload.Len())).Dump(ch.buf))
	ch.buf.Write(payload.Bytes())
	ch.buf.Write(fold.Sum())

	_, err := Read(newMemChannel(stream.ReadOnly, ch.buf.Bytes()))
	require.Error(t, err)
}

func TestCompareAgainstReferenceMarksUnchangedNotSaved(t *testing.T) {
	reference := New()
	require.NoError(t, reference.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 10, Mtime: 1000},
	}))

	scanned := New()
	require.NoError(t, scanned.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 10, Mtime: 1000},
	}))

	require.NoError(t, CompareAgainstReference(scanned, reference, DiffOptions{}, 0))

	e, ok := scanned.Get("/a.txt")
	require.True(t, ok)
	require.Equal(t, NotSaved, e.SavedStatus)
}

func TestCompareAgainstReferenceMarksChangedContentSaved(t *testing.T) {
	reference := New()
	require.NoError(t, reference.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 10, Mtime: 1000},
	}))

	scanned := New()
	require.NoError(t, scanned.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 20, Mtime: 2000},
	}))

	require.NoError(t, CompareAgainstReference(scanned, reference, DiffOptions{}, 0))

	e, ok := scanned.Get("/a.txt")
	require.True(t, ok)
	require.Equal(t, Saved, e.SavedStatus)
}

func TestCompareAgainstReferenceMarksMetadataOnlyChangeInodeOnly(t *testing.T) {
	reference := New()
	require.NoError(t, reference.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 10, Mtime: 1000, Mode: 0644},
	}))

	scanned := New()
	require.NoError(t, scanned.Insert("/", &Entry{
		Name: "a.txt", Kind: KindFile, Attr: fuse.Attr{Size: 10, Mtime: 1000, Mode: 0600},
	}))

	require.NoError(t, CompareAgainstReference(scanned, reference, DiffOptions{}, 0))

	e, ok := scanned.Get("/a.txt")
	require.True(t, ok)
	require.Equal(t, InodeOnly, e.SavedStatus)
}

func TestCompareAgainstReferenceInsertsDeletedMarker(t *testing.T) {
	reference := New()
	require.NoError(t, reference.Insert("/", &Entry{Name: "removed.txt", Kind: KindFile, Attr: fuse.Attr{Size: 1}}))

	scanned := New()

	require.NoError(t, CompareAgainstReference(scanned, reference, DiffOptions{}, 1700000000))

	e, ok := scanned.Get("/removed.txt")
	require.True(t, ok)
	require.Equal(t, KindDeleted, e.Kind)
	require.EqualValues(t, 1700000000, e.DeletedAt)
}

func TestCompareAgainstReferenceCollapsesHardlinks(t *testing.T) {
	reference := New()

	scanned := New()
	require.NoError(t, scanned.Insert("/", &Entry{Name: "a", Kind: KindFile, Attr: fuse.Attr{Ino: 77, Size: 5}}))
	require.NoError(t, scanned.Insert("/", &Entry{Name: "b", Kind: KindFile, Attr: fuse.Attr{Ino: 77, Size: 5}}))

	require.NoError(t, CompareAgainstReference(scanned, reference, DiffOptions{}, 0))

	a, ok := scanned.Get("/a")
	require.True(t, ok)
	b, ok := scanned.Get("/b")
	require.True(t, ok)
	require.Equal(t, KindHardlinkMirage, a.Kind)
	require.Equal(t, KindHardlinkMirage, b.Kind)
	require.Same(t, a.Star, b.Star)
	require.Equal(t, Saved, a.Star.SavedStatus)
}
