package catalog

import (
	"bytes"
	"encoding/binary"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/crc"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// CRCWidth is the rolling XOR-fold width used to frame a serialized
// catalogue (§4.F "default 2 bytes for catalogue framing").
const CRCWidth = 2

// Dump serializes the catalogue depth-first, pre-order (§4.G
// "Serialisation"), and writes it to ch framed by a bignum length prefix
// and a CRC trailer: [bignum len][payload][CRC(payload)].
//
// Hard links always use the framings this package writes going forward:
// the first mirage for a given etiquette carries the shared Star inline
// ("mirage-with-inode"); later mirages for the same etiquette carry only
// the etiquette id ("mirage-alone"). The legacy "separate star object"
// framing is read-only — see readChildren in read.go.
func (c *Catalog) Dump(ch stream.Channel) error {
	var buf bytes.Buffer
	emitted := map[uint64]bool{}
	for _, child := range c.Root.Children {
		if err := dumpChild(&buf, child, emitted); err != nil {
			return err
		}
	}
	payload := buf.Bytes()

	fold := crc.NewFold(CRCWidth)
	fold.Update(payload)
	sum := fold.Sum()

	if err := bignum.FromUint64(uint64(len(payload))).Dump(channelWriter{ch}); err != nil {
		return err
	}
	if _, err := ch.Write(payload); err != nil {
		return errs.New(errs.KindHardware, "catalog.Dump", err)
	}
	if _, err := ch.Write(sum); err != nil {
		return errs.New(errs.KindHardware, "catalog.Dump", err)
	}
	return nil
}

// dumpChild writes one tree entry and, for a directory, recurses into
// its children and closes with an EOD marker. Ignored/ignored-dir
// sentinels are diff bookkeeping only (§4.G) and are never written.
func dumpChild(buf *bytes.Buffer, e *Entry, emitted map[uint64]bool) error {
	if e.Kind == KindIgnored || e.Kind == KindIgnoredDir {
		return nil
	}

	writeString(buf, e.Name)
	switch e.Kind {
	case KindDir:
		buf.WriteByte(byte(KindDir))
		writeAttr(buf, &e.Attr)
		for _, child := range e.Children {
			if err := dumpChild(buf, child, emitted); err != nil {
				return err
			}
		}
		buf.WriteByte(byte(KindEOD))

	case KindFile:
		buf.WriteByte(byte(KindFile))
		writeAttr(buf, &e.Attr)
		dumpFileData(buf, e.DataOffset, e.DataCRC, e.SavedStatus, e.CompressionAlgo)
		writeUint64(buf, e.EAFingerprint)
		if e.SavedStatus == Delta {
			writeString(buf, string(e.DeltaSignature))
		}

	case KindSymlink:
		buf.WriteByte(byte(KindSymlink))
		writeAttr(buf, &e.Attr)
		writeString(buf, e.Target)

	case KindCharDevice, KindBlockDevice:
		buf.WriteByte(byte(e.Kind))
		writeAttr(buf, &e.Attr)
		writeUint32(buf, e.Major)
		writeUint32(buf, e.Minor)

	case KindNamedPipe, KindSocket:
		buf.WriteByte(byte(e.Kind))
		writeAttr(buf, &e.Attr)

	case KindHardlinkMirage:
		buf.WriteByte(byte(KindHardlinkMirage))
		if !emitted[e.Etiquette] {
			buf.WriteByte(1) // hasInode: mirage-with-inode framing
			writeAttr(buf, &e.Star.Attr)
			dumpFileData(buf, e.Star.DataOffset, e.Star.DataCRC, e.Star.SavedStatus, e.Star.CompressionAlgo)
			writeUint64(buf, e.Etiquette)
			emitted[e.Etiquette] = true
		} else {
			buf.WriteByte(0) // mirage-alone framing
			writeUint64(buf, e.Etiquette)
		}

	case KindDeleted:
		buf.WriteByte(byte(KindDeleted))
		writeUint64(buf, uint64(e.DeletedAt))

	default:
		return errs.New(errs.KindBug, "catalog.dumpChild", errUnserializableKind)
	}
	return nil
}

func dumpFileData(buf *bytes.Buffer, offset *bignum.Int, sum crc.Stamp, status SavedStatus, algo compress.Algorithm) {
	if offset == nil {
		offset = bignum.Zero()
	}
	_ = offset.Dump(buf)
	if sum == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(byte(sum.Width()))
		buf.Write(sum.Sum())
	}
	buf.WriteByte(byte(status))
	buf.WriteByte(byte(algo))
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

type catalogDumpErr string

func (e catalogDumpErr) Error() string { return string(e) }

const errUnserializableKind = catalogDumpErr("entry kind cannot appear as a direct tree child")

// channelWriter adapts a stream.Channel to io.Writer for bignum.Dump.
type channelWriter struct{ ch stream.Channel }

func (w channelWriter) Write(p []byte) (int, error) { return w.ch.Write(p) }
