package cipher

import (
	"fmt"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// Frame wraps a stream.Channel and encrypts/decrypts in fixed cipher
// blocks (§4.D). The clear stream it exposes is not guaranteed randomly
// seekable backwards without redecrypting the containing crypto block;
// Skip always redecrypts.
type Frame struct {
	stream.Base

	under stream.Channel
	bc    BlockCipher
	pad   ElasticBuffer

	// write side
	wBlockIdx uint64
	wBuf      []byte // accumulated clear bytes for the block in progress

	// read side
	rBlockIdx  uint64
	rClearBuf  []byte // decrypted clear bytes from the current block, not yet consumed
	rConsumed  int
	rAtFinal   bool // the last block read was unpadded as the final (elastic) block
	rExhausted bool
}

// NewWriteFrame opens a Frame in write mode over under, encrypting with bc.
func NewWriteFrame(under stream.Channel, bc BlockCipher) *Frame {
	return &Frame{Base: stream.NewBase(stream.WriteOnly), under: under, bc: bc}
}

// NewReadFrame opens a Frame in read mode over under, decrypting with bc.
func NewReadFrame(under stream.Channel, bc BlockCipher) *Frame {
	return &Frame{Base: stream.NewBase(stream.ReadOnly), under: under, bc: bc}
}

func (f *Frame) Write(p []byte) (int, error) {
	if err := f.CheckWritable("cipher.Frame.Write"); err != nil {
		return 0, err
	}
	clearSize := f.bc.ClearBlockSize()
	total := 0
	for total < len(p) {
		room := clearSize - len(f.wBuf)
		n := len(p) - total
		if n > room {
			n = room
		}
		f.wBuf = append(f.wBuf, p[total:total+n]...)
		total += n
		if len(f.wBuf) == clearSize {
			if err := f.flushBlock(false); err != nil {
				return total, err
			}
		}
	}
	f.Advance(total, p)
	return total, nil
}

// flushBlock encrypts and forwards the buffered clear bytes. final elastic-
// pads a short last block before encrypting it.
func (f *Frame) flushBlock(final bool) error {
	clear := f.wBuf
	if final {
		clear = f.pad.Pad(clear, f.bc.ClearBlockSize())
	}
	if len(clear) == 0 {
		return nil
	}
	crypt, err := f.bc.EncryptBlock(f.wBlockIdx, clear)
	if err != nil {
		return err
	}
	if _, err := f.under.Write(crypt); err != nil {
		return errs.New(errs.KindHardware, "cipher.Frame.flushBlock", err)
	}
	f.wBlockIdx++
	f.wBuf = nil
	return nil
}

func (f *Frame) EndOfFile() error {
	if f.IsEndOfFile() {
		return nil
	}
	if err := f.flushBlock(true); err != nil {
		return err
	}
	f.MarkEndOfFile()
	return f.under.EndOfFile()
}

func (f *Frame) Read(p []byte) (int, error) {
	if err := f.CheckReadable("cipher.Frame.Read"); err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		if f.rConsumed >= len(f.rClearBuf) {
			if f.rAtFinal || f.rExhausted {
				break
			}
			if err := f.fillBlock(); err != nil {
				return total, err
			}
			if f.rExhausted {
				break
			}
		}
		n := copy(p[total:], f.rClearBuf[f.rConsumed:])
		f.rConsumed += n
		total += n
	}
	f.Advance(total, p)
	return total, nil
}

// fillBlock fetches and decrypts the next crypto block. A short read from
// the underlying channel (fewer bytes than CryptBlockSize) is the final
// block; it is unpadded via the elastic scheme.
func (f *Frame) fillBlock() error {
	cryptSize := f.bc.CryptBlockSize()
	raw := make([]byte, cryptSize)
	n := 0
	for n < cryptSize {
		rn, err := f.under.Read(raw[n:])
		if err != nil {
			return errs.New(errs.KindHardware, "cipher.Frame.fillBlock", err)
		}
		if rn == 0 {
			break
		}
		n += rn
	}
	if n == 0 {
		f.rExhausted = true
		return nil
	}

	final := n < cryptSize
	clear, err := f.bc.DecryptBlock(f.rBlockIdx, raw[:n])
	if err != nil {
		return err
	}
	if final {
		unpadded, ok := f.pad.Unpad(clear)
		if !ok {
			return errs.New(errs.KindData, "cipher.Frame.fillBlock", fmt.Errorf("malformed elastic trailer"))
		}
		clear = unpadded
		f.rAtFinal = true
	}
	f.rClearBuf = clear
	f.rConsumed = 0
	f.rBlockIdx++
	return nil
}

// Skip maps the clear position p to crypt position floor(p/B)*E(B) on the
// underlying channel, then discards p mod B bytes after decrypting the
// containing block — the clear stream is not randomly seekable without
// redecrypting the block it falls in.
func (f *Frame) Skip(p *bignum.Int) error {
	clearSize := uint64(f.bc.ClearBlockSize())
	cryptSize := uint64(f.bc.CryptBlockSize())

	pv, ok := p.Uint64()
	if !ok {
		return errs.New(errs.KindFeature, "cipher.Frame.Skip", fmt.Errorf("offset exceeds addressable range"))
	}
	blockIdx := pv / clearSize
	within := pv % clearSize

	if err := f.under.Skip(bignum.FromUint64(blockIdx * cryptSize)); err != nil {
		return err
	}
	f.rBlockIdx = blockIdx
	f.rClearBuf = nil
	f.rConsumed = 0
	f.rAtFinal = false
	f.rExhausted = false

	if err := f.fillBlock(); err != nil {
		return err
	}
	if within > uint64(len(f.rClearBuf)) {
		return errs.New(errs.KindRange, "cipher.Frame.Skip", fmt.Errorf("offset lands past end of clear stream"))
	}
	f.rConsumed = int(within)
	f.SetPosition(p)
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
		if f.rExhausted || f.rAtFinal && f.rConsumed >= len(f.rClearBuf) {
			return nil
		}
		if err := f.fillBlock(); err != nil {
			return err
		}
		f.rConsumed = len(f.rClearBuf)
	}
}

func (f *Frame) Close() error { return f.under.Close() }

var _ stream.Channel = (*Frame)(nil)
