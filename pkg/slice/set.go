package slice

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// Set implements stream.Channel over a Store, presenting a logically
// contiguous byte stream spread across fixed-size physical slices (§4.C).
//
// Each slice's header and payload are built up in memory and handed to the
// Store as one unit (Store.WriteSlice): this lets every backend — a plain
// file, an S3 object, or a named pipe — share one write path without
// needing to support in-place rewrites or backward seeks.
type Set struct {
	stream.Base

	store      Store
	sliceSize  int // total bytes per slice including the header, 0 = unbounded (single slice)
	payloadCap int // sliceSize - HeaderSize; 0 means unbounded

	curIndex int
	curBuf   []byte // accumulated payload bytes for the slice being written
	curRead  io.ReadCloser
	curRdHdr Header
	curRdOff int // bytes already consumed from the current read slice's payload

	betweenSliceHook func(idx int) error
	onNoSpace        func() (bool, error)
}

// OpenWrite creates a new Set for writing. sliceSize is the total physical
// size of each slice including its header; 0 means "single slice" (the
// whole archive lives in slice 1, as scenario S1 exercises).
func OpenWrite(store Store, sliceSize int) *Set {
	payloadCap := 0
	if sliceSize > 0 {
		payloadCap = sliceSize - HeaderSize
	}
	s := &Set{
		Base:       stream.NewBase(stream.WriteOnly),
		store:      store,
		sliceSize:  sliceSize,
		payloadCap: payloadCap,
		curIndex:   1,
	}
	return s
}

// OpenRead opens an existing Set for reading, probing slice 1 to discover
// its payload capacity.
func OpenRead(store Store) (*Set, error) {
	s := &Set{
		Base:     stream.NewBase(stream.ReadOnly),
		store:    store,
		curIndex: 1,
	}
	if err := s.openReadSlice(1); err != nil {
		return nil, err
	}
	if !s.curRdHdr.IsTerminal() {
		n, err := io.Copy(io.Discard, s.curRead)
		s.curRead.Close()
		s.curRead = nil
		if err != nil {
			return nil, errs.New(errs.KindHardware, "slice.OpenRead", err)
		}
		s.payloadCap = int(n)
		if err := s.openReadSlice(1); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetBetweenSliceHook installs the optional user command run between
// closing one slice and opening the next (§4.C).
func (s *Set) SetBetweenSliceHook(hook func(idx int) error) { s.betweenSliceHook = hook }

// SetNoSpaceRetry installs the pause-and-retry prompt consulted when
// WriteSlice fails with ENOSPC (§7 "no-space prompt"): fn reports
// whether the caller freed space and the write should be retried. A
// nil hook (the default) propagates the ENOSPC failure as a hardware
// error without pausing.
func (s *Set) SetNoSpaceRetry(fn func() (bool, error)) { s.onNoSpace = fn }

func (s *Set) openReadSlice(idx int) error {
	rc, err := s.store.ReadSlice(idx)
	if err != nil {
		return err
	}
	hdr, err := DecodeHeader(rc)
	if err != nil {
		rc.Close()
		return err
	}
	if hdr.Index != idx {
		rc.Close()
		return errs.New(errs.KindData, "slice.Set.openReadSlice", fmt.Errorf("slice %d carries header index %d", idx, hdr.Index))
	}
	s.curRead = rc
	s.curRdHdr = hdr
	s.curRdOff = 0
	s.curIndex = idx
	return nil
}

// Read implements stream.Channel. It transparently advances across slice
// boundaries and refuses to read past a slice whose header carries the
// terminal flag (§4.C: "readers must refuse to read past it").
func (s *Set) Read(p []byte) (int, error) {
	if err := s.CheckReadable("slice.Set.Read"); err != nil {
		return 0, err
	}
	if s.curRead == nil {
		return 0, nil
	}

	total := 0
	for total < len(p) {
		n, err := s.curRead.Read(p[total:])
		if n > 0 {
			total += n
			s.curRdOff += n
		}
		if err != nil {
			if err != io.EOF {
				return total, errs.New(errs.KindHardware, "slice.Set.Read", err)
			}
			// End of this physical slice's payload.
			if s.curRdHdr.IsTerminal() {
				s.curRead.Close()
				s.curRead = nil
				break
			}
			s.curRead.Close()
			if err := s.openReadSlice(s.curIndex + 1); err != nil {
				return total, err
			}
			continue
		}
		if n == 0 {
			break
		}
	}
	s.Advance(total, p)
	return total, nil
}

// Write implements stream.Channel, rolling to the next slice once the
// current one reaches its payload capacity.
func (s *Set) Write(p []byte) (int, error) {
	if err := s.CheckWritable("slice.Set.Write"); err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		room := len(p) - total
		if s.payloadCap > 0 {
			avail := s.payloadCap - len(s.curBuf)
			if avail <= 0 {
				if err := s.rollSlice(false); err != nil {
					return total, err
				}
				continue
			}
			if room > avail {
				room = avail
			}
		}
		s.curBuf = append(s.curBuf, p[total:total+room]...)
		total += room
	}
	s.Advance(total, p)
	return total, nil
}

// rollSlice finalizes the current in-memory slice buffer (marking it
// terminal if final) and, unless final, opens the next one.
func (s *Set) rollSlice(final bool) error {
	flag := FlagNone
	if final {
		flag = FlagTerminal
	}
	hdr := Header{Index: s.curIndex, Flag: flag}
	content := append(hdr.Encode(), s.curBuf...)
	for {
		err := s.store.WriteSlice(s.curIndex, content)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.ENOSPC) || s.onNoSpace == nil {
			return err
		}
		retry, promptErr := s.onNoSpace()
		if promptErr != nil {
			return promptErr
		}
		if !retry {
			return errs.New(errs.KindUserAbort, "slice.Set.rollSlice", err)
		}
	}
	s.curBuf = nil
	if !final {
		if s.betweenSliceHook != nil {
			if err := s.betweenSliceHook(s.curIndex); err != nil {
				return errs.New(errs.KindScript, "slice.Set.rollSlice", err)
			}
		}
		s.curIndex++
	}
	return nil
}

// Skip implements stream.Channel for absolute positioning. Only read-mode
// sets support random access; it reopens whichever slice contains the
// target offset.
func (s *Set) Skip(pos *bignum.Int) error {
	if s.Mode() == stream.WriteOnly {
		return errs.New(errs.KindFeature, "slice.Set.Skip", fmt.Errorf("write-mode slice sets are append-only"))
	}
	if s.payloadCap <= 0 {
		// single, unbounded slice: position directly within it.
		return s.skipWithinSlice(1, pos, pos)
	}
	offset, ok := pos.Uint64()
	if !ok {
		return errs.New(errs.KindFeature, "slice.Set.Skip", fmt.Errorf("offset exceeds addressable range"))
	}
	idx := int(offset/uint64(s.payloadCap)) + 1
	within := offset % uint64(s.payloadCap)
	return s.skipWithinSlice(idx, bignum.FromUint64(within), pos)
}

func (s *Set) skipWithinSlice(idx int, within, absolute *bignum.Int) error {
	if s.curRead != nil {
		s.curRead.Close()
		s.curRead = nil
	}
	if err := s.openReadSlice(idx); err != nil {
		return err
	}
	w, ok := within.Uint64()
	if !ok {
		return errs.New(errs.KindFeature, "slice.Set.Skip", fmt.Errorf("intra-slice offset too large"))
	}
	buf := make([]byte, 32*1024)
	remaining := w
	for remaining > 0 {
		chunk := uint64(len(buf))
		if chunk > remaining {
			chunk = remaining
		}
		n, err := s.curRead.Read(buf[:chunk])
		remaining -= uint64(n)
		if err != nil && err != io.EOF {
			return errs.New(errs.KindHardware, "slice.Set.Skip", err)
		}
		if n == 0 {
			break
		}
	}
	s.SetPosition(absolute)
	return nil
}

// SkipRelative implements stream.Channel, saturating at 0 on under-run.
func (s *Set) SkipRelative(delta int64) (bool, error) {
	pos := s.Position()
	if delta < 0 {
		dec := bignum.FromUint64(uint64(-delta))
		if pos.Cmp(dec) < 0 {
			if err := s.Skip(bignum.Zero()); err != nil {
				return false, err
			}
			return false, nil
		}
		newPos, err := pos.Sub(dec)
		if err != nil {
			return false, err
		}
		return true, s.Skip(newPos)
	}
	return true, s.Skip(pos.Add(bignum.FromUint64(uint64(delta))))
}

// SkipToEOF implements stream.Channel by scanning forward to the terminal
// slice and exhausting it. Read never returns io.EOF — it signals end of
// stream with (0, nil) once curRead is nil — so this drains with a
// scratch buffer rather than io.Copy, which would block forever waiting
// for an io.EOF that never comes.
func (s *Set) SkipToEOF() error {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 && s.curRead == nil {
			return nil
		}
	}
}

// EndOfFile implements stream.Channel: the final, possibly short, slice is
// flushed with the terminal bit set.
func (s *Set) EndOfFile() error {
	if s.Mode() == stream.ReadOnly {
		return errs.New(errs.KindBug, "slice.Set.EndOfFile", fmt.Errorf("read-only channel has no end_of_file"))
	}
	if s.IsEndOfFile() {
		return nil
	}
	if err := s.rollSlice(true); err != nil {
		return err
	}
	s.MarkEndOfFile()
	return nil
}

func (s *Set) Close() error {
	if s.curRead != nil {
		return s.curRead.Close()
	}
	return nil
}

var _ stream.Channel = (*Set)(nil)
