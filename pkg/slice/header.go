package slice

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dar-go/dar/pkg/errs"
)

// magic identifies a physical slice file as belonging to this engine.
var magic = [3]byte{'D', 'A', 'R'}

// Flag bits carried by a slice header's single flag byte.
const (
	FlagNone     byte = 0
	FlagTerminal byte = 1 << 0 // set on the final slice of an archive
)

// HeaderSize is the fixed encoded size of a Header: magic(3) ‖ index(4,
// big-endian) ‖ flag(1). Unlike archive-wide offsets, which can run past
// 2^64 and so travel as bignum.Int, a slice index is bounded by how many
// physical files a deployment is willing to manage; a fixed 4-byte field
// keeps payload_per_slice a compile-time-derivable constant instead of a
// function of how large the index happens to be, which the self-delimiting
// bignum encoding would make it. See DESIGN.md for the rationale.
const HeaderSize = 3 + 4 + 1

// Header is the fixed per-slice prologue of §4.C / §6.
type Header struct {
	Index int
	Flag  byte
}

// Encode serializes the header to exactly HeaderSize bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], magic[:])
	binary.BigEndian.PutUint32(buf[3:7], uint32(h.Index))
	buf[7] = h.Flag
	return buf
}

// DecodeHeader reads a Header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, errs.New(errs.KindData, "slice.DecodeHeader", fmt.Errorf("truncated slice header: %w", err))
	}
	var m [3]byte
	copy(m[:], buf[0:3])
	if m != magic {
		return Header{}, errs.New(errs.KindData, "slice.DecodeHeader", fmt.Errorf("bad slice magic %v", m))
	}
	idx := binary.BigEndian.Uint32(buf[3:7])
	return Header{Index: int(idx), Flag: buf[7]}, nil
}

// IsTerminal reports whether the terminal bit is set.
func (h Header) IsTerminal() bool { return h.Flag&FlagTerminal != 0 }
