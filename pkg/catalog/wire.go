package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// attrWireSize is the fixed encoding of the POSIX metadata subset that
// survives an archive round trip: mode, uid, gid, size, and the
// atime/mtime/ctime pairs. Ino/Blocks/Nlink are host-local and not part
// of the archived state.
const attrWireSize = 4 + 4 + 4 + 8 + 8 + 4 + 8 + 4 + 8 + 4

func writeAttr(buf *bytes.Buffer, a *fuse.Attr) {
	var b [attrWireSize]byte
	binary.BigEndian.PutUint32(b[0:4], a.Mode)
	binary.BigEndian.PutUint32(b[4:8], a.Owner.Uid)
	binary.BigEndian.PutUint32(b[8:12], a.Owner.Gid)
	binary.BigEndian.PutUint64(b[12:20], a.Size)
	binary.BigEndian.PutUint64(b[20:28], a.Atime)
	binary.BigEndian.PutUint32(b[28:32], a.Atimensec)
	binary.BigEndian.PutUint64(b[32:40], a.Mtime)
	binary.BigEndian.PutUint32(b[40:44], a.Mtimensec)
	binary.BigEndian.PutUint64(b[44:52], a.Ctime)
	binary.BigEndian.PutUint32(b[52:56], a.Ctimensec)
	buf.Write(b[:])
}

func readAttr(r io.Reader) (fuse.Attr, error) {
	var b [attrWireSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return fuse.Attr{}, errs.New(errs.KindData, "catalog.readAttr", fmt.Errorf("truncated attr: %w", err))
	}
	var a fuse.Attr
	a.Mode = binary.BigEndian.Uint32(b[0:4])
	a.Owner.Uid = binary.BigEndian.Uint32(b[4:8])
	a.Owner.Gid = binary.BigEndian.Uint32(b[8:12])
	a.Size = binary.BigEndian.Uint64(b[12:20])
	a.Atime = binary.BigEndian.Uint64(b[20:28])
	a.Atimensec = binary.BigEndian.Uint32(b[28:32])
	a.Mtime = binary.BigEndian.Uint64(b[32:40])
	a.Mtimensec = binary.BigEndian.Uint32(b[40:44])
	a.Ctime = binary.BigEndian.Uint64(b[44:52])
	a.Ctimensec = binary.BigEndian.Uint32(b[52:56])
	return a, nil
}

// writeString emits s as a bignum length prefix followed by its bytes —
// the same "every size travels as a bignum" convention §4.A establishes
// for slice/stream framing, reused here for the catalogue's own variable
// fields.
func writeString(buf *bytes.Buffer, s string) {
	_ = bignum.FromUint64(uint64(len(s))).Dump(buf)
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	n, err := bignum.Read(r)
	if err != nil {
		return "", err
	}
	nv, ok := n.Uint64()
	if !ok {
		return "", errs.New(errs.KindFeature, "catalog.readString", fmt.Errorf("string length exceeds addressable range"))
	}
	out := make([]byte, nv)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", errs.New(errs.KindData, "catalog.readString", fmt.Errorf("truncated string: %w", err))
	}
	return string(out), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errs.New(errs.KindData, "catalog.readUint64", fmt.Errorf("truncated uint64: %w", err))
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// readByte reads a single byte from any io.Reader, bytes.Reader included.
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errs.New(errs.KindData, "catalog.readByte", fmt.Errorf("truncated: %w", err))
	}
	return b[0], nil
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errs.New(errs.KindData, "catalog.readBytes", fmt.Errorf("truncated: %w", err))
	}
	return out, nil
}

// storedStamp reconstructs a crc.Stamp purely from its recovered wire
// bytes, so a value read back out of a catalogue can still be compared
// with crc.Equal against a freshly computed checksum during Test/Extract.
// It is a frozen snapshot: Update is never meaningful on it again.
type storedStamp struct {
	width int
	sum   []byte
}

func (s storedStamp) Update(p []byte) {}
func (s storedStamp) Sum() []byte     { return s.sum }
func (s storedStamp) Width() int      { return s.width }

// readExact pulls exactly n bytes out of ch, translating the Channel
// contract's zero-length-means-EOF into an explicit truncation error
// rather than looping forever.
func readExact(ch stream.Channel, n uint64) ([]byte, error) {
	out := make([]byte, n)
	var got uint64
	for got < n {
		rn, err := ch.Read(out[got:])
		if err != nil {
			return nil, err
		}
		if rn == 0 {
			return nil, errs.New(errs.KindData, "catalog.readExact", fmt.Errorf("truncated catalogue: wanted %d bytes, got %d", n, got))
		}
		got += uint64(rn)
	}
	return out, nil
}
