// Package bignum implements the arbitrary-precision unsigned counter used
// for every size, offset, and file-position in an archive (§4.A). Archives
// may describe logical payloads past 2^64 bytes, so every on-disk length
// travels as a Int rather than a fixed machine word.
//
// No arbitrary-precision integer library appears anywhere in the retrieval
// pack, so Int is built on math/big: the fast-path/spillover split the spec
// allows is left internal to big.Int's own representation.
package bignum

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"math/bits"

	"github.com/dar-go/dar/pkg/errs"
)

// groupSize is the width, in bytes, of one payload group in the wire format.
const groupSize = 4

// Int is a non-negative arbitrary-precision integer.
type Int struct {
	v big.Int
}

// Zero returns the additive identity.
func Zero() *Int { return &Int{} }

// FromUint64 builds an Int from a native unsigned value.
func FromUint64(n uint64) *Int {
	i := &Int{}
	i.v.SetUint64(n)
	return i
}

// FromBytes builds an Int from a big-endian byte slice.
func FromBytes(b []byte) *Int {
	i := &Int{}
	i.v.SetBytes(b)
	return i
}

// Clone returns an independent copy.
func (i *Int) Clone() *Int {
	out := &Int{}
	out.v.Set(&i.v)
	return out
}

// IsZero reports whether the value is 0.
func (i *Int) IsZero() bool { return i.v.Sign() == 0 }

// Cmp compares i to other, following the sign convention of big.Int.Cmp.
func (i *Int) Cmp(other *Int) int { return i.v.Cmp(&other.v) }

// Add returns i + other as a new Int.
func (i *Int) Add(other *Int) *Int {
	out := &Int{}
	out.v.Add(&i.v, &other.v)
	return out
}

// Sub returns i - other. The type is unsigned by contract: a negative result
// is a KindRange error, never a wrapped value.
func (i *Int) Sub(other *Int) (*Int, error) {
	if i.v.Cmp(&other.v) < 0 {
		return nil, errs.New(errs.KindRange, "bignum.Sub", fmt.Errorf("%s - %s underflows", i, other))
	}
	out := &Int{}
	out.v.Sub(&i.v, &other.v)
	return out, nil
}

// Mul returns i * other.
func (i *Int) Mul(other *Int) *Int {
	out := &Int{}
	out.v.Mul(&i.v, &other.v)
	return out
}

// DivMod returns (i / other, i % other). Division by zero is reported as
// a KindRange error, the same kind Sub reports for underflow; errs has
// no kind reserved for division by zero alone.
func (i *Int) DivMod(other *Int) (q, r *Int, err error) {
	if other.v.Sign() == 0 {
		return nil, nil, errs.New(errs.KindRange, "bignum.DivMod", fmt.Errorf("division by zero"))
	}
	q, r = &Int{}, &Int{}
	q.v.DivMod(&i.v, &other.v, &r.v)
	return q, r, nil
}

// Lsh returns i << n.
func (i *Int) Lsh(n uint) *Int {
	out := &Int{}
	out.v.Lsh(&i.v, n)
	return out
}

// Rsh returns i >> n.
func (i *Int) Rsh(n uint) *Int {
	out := &Int{}
	out.v.Rsh(&i.v, n)
	return out
}

func (i *Int) String() string { return i.v.String() }

// Uint64 reports the value truncated to 64 bits, and whether it fit exactly.
func (i *Int) Uint64() (uint64, bool) {
	return i.v.Uint64(), i.v.IsUint64()
}

// Unstack consumes the low end of i into a native word, saturating at max.
// It mutates i in place (i -= consumed) and returns the consumed amount.
// This is how loops that must hand native-sized counts to I/O primitives
// walk an arbitrarily large Int without risking overflow.
func (i *Int) Unstack(max uint64) uint64 {
	if i.v.IsUint64() && i.v.Uint64() <= max {
		consumed := i.v.Uint64()
		i.v.SetUint64(0)
		return consumed
	}
	var m big.Int
	m.SetUint64(max)
	i.v.Sub(&i.v, &m)
	return max
}

// groupCount returns the number of 4-byte groups needed to hold v, at least 1.
func groupCount(v *big.Int) int {
	bitLen := v.BitLen()
	if bitLen == 0 {
		return 1
	}
	n := (bitLen + 8*groupSize - 1) / (8 * groupSize)
	if n == 0 {
		n = 1
	}
	return n
}

// Dump writes the self-delimiting wire encoding of i to w: a run of zero
// bytes, then a single byte with exactly one set bit whose position encodes
// the payload length in 4-byte groups, then the big-endian, normalized
// payload.
func (i *Int) Dump(w io.Writer) error {
	n := groupCount(&i.v)

	preambleZeroBytes := (n - 1) / 8
	bitIndex := uint((n - 1) % 8) // 0 = MSB of the marker byte

	if preambleZeroBytes > 0 {
		if _, err := w.Write(make([]byte, preambleZeroBytes)); err != nil {
			return errs.New(errs.KindHardware, "bignum.Dump", err)
		}
	}
	marker := byte(0x80) >> bitIndex
	if _, err := w.Write([]byte{marker}); err != nil {
		return errs.New(errs.KindHardware, "bignum.Dump", err)
	}

	payload := make([]byte, n*groupSize)
	i.v.FillBytes(payload)
	if _, err := w.Write(payload); err != nil {
		return errs.New(errs.KindHardware, "bignum.Dump", err)
	}
	return nil
}

// Bytes returns the Dump encoding as a standalone slice.
func (i *Int) Bytes() []byte {
	var buf bytes.Buffer
	_ = i.Dump(&buf)
	return buf.Bytes()
}

// Read reconstructs an Int previously written by Dump.
func Read(r io.Reader) (*Int, error) {
	var one [1]byte
	preambleZeroBytes := 0
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return nil, errs.New(errs.KindData, "bignum.Read", fmt.Errorf("truncated preamble: %w", err))
		}
		if one[0] != 0 {
			break
		}
		preambleZeroBytes++
	}
	if bits.OnesCount8(one[0]) != 1 {
		return nil, errs.New(errs.KindData, "bignum.Read", fmt.Errorf("marker byte %#x has more than one set bit", one[0]))
	}
	bitIndex := bits.LeadingZeros8(one[0])
	n := preambleZeroBytes*8 + bitIndex + 1

	payload := make([]byte, n*groupSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errs.New(errs.KindData, "bignum.Read", fmt.Errorf("truncated payload: %w", err))
	}

	out := &Int{}
	out.v.SetBytes(payload)
	return out, nil
}
