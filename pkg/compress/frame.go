package compress

import (
	"errors"
	"fmt"
	"io"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// segment records where one compressed block starts, in both the clear
// (decompressed) and underlying (compressed) position spaces. Frame builds
// this table lazily as segments are written or read, giving Skip an O(1)
// jump to any boundary it has already seen and a sequential fallback
// otherwise — the "strict implementer may record boundary offsets" option
// §4.E leaves open, done unconditionally since the cost is one slice
// append per block.
type segment struct {
	clearStart *bignum.Int
	underStart *bignum.Int
}

// Frame wraps a stream.Channel and transparently compresses (write mode) or
// decompresses (read mode) through codec, one bignum-length-prefixed block
// at a time.
type Frame struct {
	stream.Base

	under stream.Channel
	codec Codec

	autoSync int // clear bytes buffered before an implicit SyncWrite; 0 disables

	// write side
	wBuf      []byte
	wSegStart *bignum.Int

	// read side
	rBuf       []byte
	rConsumed  int
	rExhausted bool

	segments []segment
}

// NewWriteFrame opens a Frame in write mode over under, compressing with
// codec. autoSync, if non-zero, forces a segment boundary every time that
// many clear bytes have been buffered, without the caller having to call
// SyncWrite explicitly.
func NewWriteFrame(under stream.Channel, codec Codec, autoSync int) *Frame {
	return &Frame{
		Base:      stream.NewBase(stream.WriteOnly),
		under:     under,
		codec:     codec,
		autoSync:  autoSync,
		wSegStart: bignum.Zero(),
	}
}

// NewReadFrame opens a Frame in read mode over under, decompressing with codec.
func NewReadFrame(under stream.Channel, codec Codec) *Frame {
	return &Frame{Base: stream.NewBase(stream.ReadOnly), under: under, codec: codec}
}

func (f *Frame) Write(p []byte) (int, error) {
	if err := f.CheckWritable("compress.Frame.Write"); err != nil {
		return 0, err
	}
	f.wBuf = append(f.wBuf, p...)
	f.Advance(len(p), p)
	if f.autoSync > 0 && len(f.wBuf) >= f.autoSync {
		if err := f.SyncWrite(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// SyncWrite closes out the in-progress block as a complete, independently
// decompressable segment and starts a fresh one. Callers that want a
// resync point at a known clear offset (e.g. the catalogue, between
// entries) call this explicitly; a corrupt block discovered later can
// never poison anything before the SyncWrite that sealed it.
func (f *Frame) SyncWrite() error {
	return f.flushSegment()
}

func (f *Frame) flushSegment() error {
	if len(f.wBuf) == 0 {
		return nil
	}
	compressed, err := f.codec.Compress(f.wBuf)
	if err != nil {
		return err
	}
	underStart := f.under.Position()
	if err := bignum.FromUint64(uint64(len(compressed))).Dump(&channelWriter{f.under}); err != nil {
		return err
	}
	if _, err := f.under.Write(compressed); err != nil {
		return errs.New(errs.KindHardware, "compress.Frame.flushSegment", err)
	}
	segEnd := f.wSegStart.Add(bignum.FromUint64(uint64(len(f.wBuf))))
	f.segments = append(f.segments, segment{clearStart: f.wSegStart.Clone(), underStart: underStart})
	f.wSegStart = segEnd
	f.wBuf = nil
	return nil
}

func (f *Frame) EndOfFile() error {
	if f.IsEndOfFile() {
		return nil
	}
	if err := f.flushSegment(); err != nil {
		return err
	}
	f.MarkEndOfFile()
	return f.under.EndOfFile()
}

func (f *Frame) Read(p []byte) (int, error) {
	if err := f.CheckReadable("compress.Frame.Read"); err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		if f.rConsumed >= len(f.rBuf) {
			if f.rExhausted {
				break
			}
			if err := f.fillSegment(); err != nil {
				return total, err
			}
			if f.rExhausted {
				break
			}
		}
		n := copy(p[total:], f.rBuf[f.rConsumed:])
		f.rConsumed += n
		total += n
	}
	f.Advance(total, p)
	return total, nil
}

// fillSegment reads and decompresses the next length-prefixed block,
// computing its clear-space start from the segment already loaded (or
// offset 0, for the first segment of the stream). A decompression failure
// is reported as KindData but does not wedge the frame: the corrupt
// block's bytes are already fully consumed from under, so the next call
// resumes cleanly at the following boundary — the caller simply sees one
// bad Read and may keep reading.
func (f *Frame) fillSegment() error {
	next := bignum.Zero()
	if n := len(f.segments); n > 0 {
		next = f.clearEndOf(n - 1)
	}
	return f.fillSegmentAt(next)
}

// clearEndOf returns the clear-space offset immediately after segment i,
// derived from segment i's recorded start plus the length of the block
// that was current when it was appended. Since segments are appended in
// the order they are materialized, this is only called for the
// most-recently-appended entry, whose length is still in rBuf.
func (f *Frame) clearEndOf(i int) *bignum.Int {
	return f.segments[i].clearStart.Add(bignum.FromUint64(uint64(len(f.rBuf))))
}

// Skip seeks to an absolute clear position. It jumps to the latest known
// segment boundary at or before pos, then decompresses sequentially
// forward until pos falls inside the loaded segment — the same "retry
// from a hint, continue sequentially" fallback §4.E documents for
// corruption recovery, reused here for ordinary seeks.
func (f *Frame) Skip(pos *bignum.Int) error {
	best := segment{clearStart: bignum.Zero(), underStart: bignum.Zero()}
	for _, s := range f.segments {
		if s.clearStart.Cmp(pos) <= 0 && s.clearStart.Cmp(best.clearStart) >= 0 {
			best = s
		}
	}

	if err := f.under.Skip(best.underStart); err != nil {
		return err
	}
	f.rBuf, f.rConsumed, f.rExhausted = nil, 0, false
	f.segments = f.segments[:0]

	cur := best.clearStart
	for {
		clearStart := cur
		if err := f.fillSegmentAt(clearStart); err != nil {
			return err
		}
		if f.rExhausted {
			return errs.New(errs.KindRange, "compress.Frame.Skip", fmt.Errorf("offset lands past end of clear stream"))
		}
		segEnd := clearStart.Add(bignum.FromUint64(uint64(len(f.rBuf))))
		if pos.Cmp(segEnd) < 0 {
			diff, err := pos.Sub(clearStart)
			if err != nil {
				return err
			}
			within, ok := diff.Uint64()
			if !ok {
				return errs.New(errs.KindRange, "compress.Frame.Skip", fmt.Errorf("offset lands outside one segment"))
			}
			f.rConsumed = int(within)
			f.SetPosition(pos)
			return nil
		}
		cur = segEnd
	}
}

// fillSegmentAt is fillSegment with an explicit, caller-known clear start,
// used by Skip where the lazy lookback in fillSegment would otherwise see
// an empty segments table right after a jump.
func (f *Frame) fillSegmentAt(clearStart *bignum.Int) error {
	underStart := f.under.Position()
	length, err := bignum.Read(&channelReader{f.under})
	if err != nil {
		if errors.Is(err, io.EOF) {
			f.rExhausted = true
			return nil
		}
		return err
	}
	lv, ok := length.Uint64()
	if !ok {
		return errs.New(errs.KindFeature, "compress.Frame.fillSegmentAt", fmt.Errorf("segment length exceeds addressable range"))
	}
	compressed := make([]byte, lv)
	if _, err := io.ReadFull(&channelReader{f.under}, compressed); err != nil {
		return errs.New(errs.KindData, "compress.Frame.fillSegmentAt", fmt.Errorf("truncated compressed segment: %w", err))
	}
	clear, err := f.codec.Decompress(compressed)
	if err != nil {
		return err
	}
	f.rBuf, f.rConsumed = clear, 0
	f.segments = append(f.segments, segment{clearStart: clearStart.Clone(), underStart: underStart})
	return nil
}

func (f *Frame) SkipRelative(delta int64) (bool, error) {
	pos := f.Position()
	if delta < 0 {
		dec := bignum.FromUint64(uint64(-delta))
		if pos.Cmp(dec) < 0 {
			return false, f.Skip(bignum.Zero())
		}
		np, err := pos.Sub(dec)
		if err != nil {
			return false, err
		}
		return true, f.Skip(np)
	}
	return true, f.Skip(pos.Add(bignum.FromUint64(uint64(delta))))
}

func (f *Frame) SkipToEOF() error {
	for {
		if f.rExhausted {
			return nil
		}
		next := bignum.Zero()
		if n := len(f.segments); n > 0 {
			next = f.clearEndOf(n - 1)
		}
		if err := f.fillSegmentAt(next); err != nil {
			return err
		}
		f.rConsumed = len(f.rBuf)
	}
}

func (f *Frame) Close() error { return f.under.Close() }

var _ stream.Channel = (*Frame)(nil)

// channelWriter adapts a stream.Channel to io.Writer for bignum.Dump.
type channelWriter struct{ ch stream.Channel }

func (w *channelWriter) Write(p []byte) (int, error) { return w.ch.Write(p) }

// channelReader adapts a stream.Channel to io.Reader for bignum.Read and
// io.ReadFull: the Channel contract reports EOF as a zero-length read with
// a nil error, which io.Reader callers must instead see as io.EOF.
type channelReader struct{ ch stream.Channel }

func (r *channelReader) Read(p []byte) (int, error) {
	n, err := r.ch.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
