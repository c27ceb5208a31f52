// Package stream defines the uniform byte-stream abstraction every layer of
// the archive pipeline is built from (§4.B): raw slice I/O, the cipher
// frame, the compressor frame, and the CRC stamp all satisfy Channel, so
// they compose into a single seekable byte channel regardless of how many
// transforms sit between the caller and the physical slices.
package stream

import (
	"fmt"
	"io"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/crc"
	"github.com/dar-go/dar/pkg/errs"
)

// Mode is the open-mode of a Channel. Every concrete channel must obey the
// mode it was opened with: a read on a write-only channel, or a write on a
// read-only channel, is a bug, not a recoverable error.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Channel is the contract every layer of the pipeline implements.
type Channel interface {
	// Mode reports the channel's open mode.
	Mode() Mode
	// Read blocks until p is full or EOF. A short/zero return means EOF,
	// not an error; a non-recoverable low-level failure is KindHardware.
	Read(p []byte) (n int, err error)
	// Write blocks until all of p is written.
	Write(p []byte) (n int, err error)
	// Skip positions the channel at an absolute offset.
	Skip(pos *bignum.Int) error
	// SkipRelative moves by delta bytes; an under-run saturates at 0 and
	// reports ok=false instead of raising an error.
	SkipRelative(delta int64) (ok bool, err error)
	// SkipToEOF positions the channel at its current logical end.
	SkipToEOF() error
	// Position reports the current absolute offset.
	Position() *bignum.Int
	// EndOfFile marks the channel as finished for writing: no further
	// write is permitted on this channel instance afterward.
	EndOfFile() error
	// ResetCRC installs a rolling checksum of the given width, updated on
	// every subsequent Read/Write. Resetting twice before GetCRC is a bug.
	ResetCRC(width int)
	// GetCRC detaches and returns the active checksum.
	GetCRC() crc.Stamp
	// Close releases any resources backing the channel.
	Close() error
}

// Base centralizes the mode/position/CRC/eof bookkeeping shared by every
// concrete Channel. A concrete type embeds Base and wraps its raw I/O with
// CheckReadable/CheckWritable/Advance so the contract in §4.B is
// enforced uniformly instead of being re-derived per layer.
type Base struct {
	mode      Mode
	pos       *bignum.Int
	eof       bool
	crcActive crc.Stamp
}

// NewBase constructs a Base positioned at offset 0.
func NewBase(mode Mode) Base {
	return Base{mode: mode, pos: bignum.Zero()}
}

func (b *Base) Mode() Mode { return b.mode }

func (b *Base) Position() *bignum.Int { return b.pos.Clone() }

// SetPosition overrides the tracked position; used after a Skip that
// re-bases the underlying I/O directly (e.g. a slice-set random seek).
func (b *Base) SetPosition(p *bignum.Int) { b.pos = p.Clone() }

func (b *Base) checkReadable(op string) error {
	if b.mode == WriteOnly {
		return errs.New(errs.KindBug, op, fmt.Errorf("read on a write-only channel"))
	}
	return nil
}

func (b *Base) checkWritable(op string) error {
	if b.mode == ReadOnly {
		return errs.New(errs.KindBug, op, fmt.Errorf("write on a read-only channel"))
	}
	if b.eof {
		return errs.New(errs.KindBug, op, fmt.Errorf("write after end_of_file"))
	}
	return nil
}

// Advance moves the tracked position forward by n bytes and folds p[:n]
// into the active CRC, if any. Call after every successful raw Read/Write.
func (b *Base) Advance(n int, p []byte) {
	if n > 0 {
		b.pos = b.pos.Add(bignum.FromUint64(uint64(n)))
		if b.crcActive != nil {
			b.crcActive.Update(p[:n])
		}
	}
}

func (b *Base) MarkEndOfFile() { b.eof = true }

func (b *Base) IsEndOfFile() bool { return b.eof }

// ResetCRC installs a fresh rolling checksum. A second reset before GetCRC
// is a contract violation the spec calls out explicitly as a bug. Width 8
// (the per-file data CRC; see archive.dataCRCWidth) gets the wider
// crc64-backed stamp instead of the plain XOR-fold, per §4.F's "fold for
// catalogue framing, crc64 for file data" split.
func (b *Base) ResetCRC(width int) {
	if b.crcActive != nil {
		panic("stream: ResetCRC called while a CRC is already active (bug: reset before GetCRC)")
	}
	if width == 8 {
		b.crcActive = crc.NewCRC64()
	} else {
		b.crcActive = crc.NewFold(width)
	}
}

func (b *Base) GetCRC() crc.Stamp {
	s := b.crcActive
	b.crcActive = nil
	if s == nil {
		return nil
	}
	return s
}

// CheckReadable/CheckWritable expose the Base guard checks to concrete
// channels that need to validate before doing raw I/O.
func (b *Base) CheckReadable(op string) error { return b.checkReadable(op) }
func (b *Base) CheckWritable(op string) error { return b.checkWritable(op) }

// CopyTo pipes bytes from src to dst through a caller-owned buffer. n is a
// bignum unstacked in native-sized passes; if n is nil, CopyTo reads until
// src reports EOF (a short/zero Read).
func CopyTo(dst, src Channel, n *bignum.Int) (*bignum.Int, error) {
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	total := bignum.Zero()

	unbounded := n == nil
	remaining := n
	if unbounded {
		remaining = bignum.Zero()
	}

	for {
		chunk := bufSize
		if !unbounded {
			if remaining.IsZero() {
				break
			}
			want := remaining.Unstack(uint64(bufSize))
			chunk = int(want)
		}

		rn, err := src.Read(buf[:chunk])
		if err != nil {
			return total, errs.New(errs.KindHardware, "stream.CopyTo", err)
		}
		if rn == 0 {
			break
		}
		wn, err := dst.Write(buf[:rn])
		if err != nil {
			return total, errs.New(errs.KindHardware, "stream.CopyTo", err)
		}
		if wn != rn {
			return total, errs.New(errs.KindHardware, "stream.CopyTo", io.ErrShortWrite)
		}
		total = total.Add(bignum.FromUint64(uint64(rn)))

		if rn < chunk && !unbounded {
			// short read before satisfying the requested count: source EOF.
			break
		}
	}
	return total, nil
}

// Diff compares two readable channels byte by byte from their current
// positions, returning true if any byte differs or if their remaining
// lengths differ.
func Diff(a, b Channel) (bool, error) {
	const bufSize = 32 * 1024
	ba := make([]byte, bufSize)
	bb := make([]byte, bufSize)

	for {
		na, err := a.Read(ba)
		if err != nil {
			return false, errs.New(errs.KindHardware, "stream.Diff", err)
		}
		nb, err := b.Read(bb)
		if err != nil {
			return false, errs.New(errs.KindHardware, "stream.Diff", err)
		}
		if na != nb {
			return true, nil
		}
		if na == 0 {
			return false, nil
		}
		for i := 0; i < na; i++ {
			if ba[i] != bb[i] {
				return true, nil
			}
		}
	}
}
