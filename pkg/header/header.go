// Package header implements the fixed-layout archive header and the
// end-of-archive terminator (§4.H): the two small framing records that
// bookend everything pkg/slice, pkg/cipher, pkg/compress, and
// pkg/catalog write in between.
package header

import (
	"bytes"
	"io"

	"github.com/google/uuid"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// Edition is the 3-byte ASCII format-revision tag written at the front
// of every archive header. Editions compare lexicographically, the way
// the original format's decimal-string editions do.
type Edition string

// MaxEdition is the newest edition this implementation writes and
// reads without prompting. archive instance ids (below) were
// introduced in "003".
const MaxEdition Edition = "003"

const editionWithInstanceID Edition = "003"

// Flag bits for Header.Flags (§4.H).
const (
	FlagEARootSaved byte = 0x80
	FlagEAUserSaved byte = 0x40
	FlagScrambled   byte = 0x20
)

// Header is the archive header written at absolute offset 0.
type Header struct {
	Edition       Edition
	Compression   compress.Algorithm
	CommandLine   string
	Flags         byte
	InstanceID    uuid.UUID // present only when Edition >= editionWithInstanceID
	hasInstanceID bool
}

// NewHeader builds a header for a freshly created archive, stamped
// with the current max edition and a fresh instance id.
func NewHeader(compression compress.Algorithm, commandLine string, flags byte) Header {
	return Header{
		Edition:       MaxEdition,
		Compression:   compression,
		CommandLine:   commandLine,
		Flags:         flags,
		InstanceID:    uuid.New(),
		hasInstanceID: true,
	}
}

// Write serializes h to ch at the caller's current position (normally
// offset 0, immediately after opening a fresh destination slice-set).
func Write(ch stream.Channel, h Header) error {
	if len(h.Edition) != 3 {
		return errs.New(errs.KindBug, "header.Write", errBadEditionLength)
	}
	if _, err := ch.Write([]byte(h.Edition)); err != nil {
		return errs.New(errs.KindHardware, "header.Write", err)
	}
	if _, err := ch.Write([]byte{byte(h.Compression)}); err != nil {
		return errs.New(errs.KindHardware, "header.Write", err)
	}

	var buf bytes.Buffer
	if err := bignum.FromUint64(uint64(len(h.CommandLine))).Dump(&buf); err != nil {
		return err
	}
	buf.WriteString(h.CommandLine)
	if _, err := ch.Write(buf.Bytes()); err != nil {
		return errs.New(errs.KindHardware, "header.Write", err)
	}

	if _, err := ch.Write([]byte{h.Flags}); err != nil {
		return errs.New(errs.KindHardware, "header.Write", err)
	}

	if h.Edition >= editionWithInstanceID {
		id := h.InstanceID
		if !h.hasInstanceID {
			id = uuid.Nil
		}
		idBytes, err := id.MarshalBinary()
		if err != nil {
			return errs.New(errs.KindBug, "header.Write", err)
		}
		if _, err := ch.Write(idBytes); err != nil {
			return errs.New(errs.KindHardware, "header.Write", err)
		}
	}
	return nil
}

// ConfirmFunc is consulted when Read encounters an edition newer than
// MaxEdition (§7 "Unknown-edition prompt"). A nil ConfirmFunc always
// declines, matching non-interactive use.
type ConfirmFunc func(candidate Edition) (bool, error)

// Read parses a header from ch's current position. If the archive's
// edition exceeds MaxEdition, confirm is consulted; a decline (or a
// nil confirm) surfaces as errs.KindUserAbort rather than KindData,
// since the bytes themselves are not corrupt.
func Read(ch stream.Channel, confirm ConfirmFunc) (Header, error) {
	var editionBuf [3]byte
	if err := readFull(ch, editionBuf[:]); err != nil {
		return Header{}, err
	}
	edition := Edition(editionBuf[:])

	if edition > MaxEdition {
		ok := false
		var err error
		if confirm != nil {
			ok, err = confirm(edition)
		}
		if err != nil {
			return Header{}, err
		}
		if !ok {
			return Header{}, errs.New(errs.KindUserAbort, "header.Read", errUnsupportedEdition)
		}
	}

	var compByte [1]byte
	if err := readFull(ch, compByte[:]); err != nil {
		return Header{}, err
	}

	cmdLen, err := bignum.Read(channelReader{ch})
	if err != nil {
		return Header{}, err
	}
	cmdLenV, ok := cmdLen.Uint64()
	if !ok {
		return Header{}, errs.New(errs.KindFeature, "header.Read", errCommandLineTooLong)
	}
	cmdLineBytes := make([]byte, cmdLenV)
	if err := readFull(ch, cmdLineBytes); err != nil {
		return Header{}, err
	}

	var flagByte [1]byte
	if err := readFull(ch, flagByte[:]); err != nil {
		return Header{}, err
	}

	h := Header{
		Edition:     edition,
		Compression: compress.Algorithm(compByte[0]),
		CommandLine: string(cmdLineBytes),
		Flags:       flagByte[0],
	}

	if edition >= editionWithInstanceID {
		var idBytes [16]byte
		if err := readFull(ch, idBytes[:]); err != nil {
			return Header{}, err
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return Header{}, errs.New(errs.KindData, "header.Read", err)
		}
		h.InstanceID = id
		h.hasInstanceID = true
	}

	return h, nil
}

func readFull(ch stream.Channel, p []byte) error {
	var got int
	for got < len(p) {
		n, err := ch.Read(p[got:])
		if err != nil {
			return errs.New(errs.KindHardware, "header.readFull", err)
		}
		if n == 0 {
			return errs.New(errs.KindData, "header.readFull", errTruncatedHeader)
		}
		got += n
	}
	return nil
}

// channelReader adapts a stream.Channel to io.Reader for bignum.Read,
// translating the Channel contract's zero-length/no-error EOF into
// io.EOF, the way pkg/compress's and pkg/catalog's identical adapters do.
type channelReader struct{ ch stream.Channel }

func (r channelReader) Read(p []byte) (int, error) {
	n, err := r.ch.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type headerErr string

func (e headerErr) Error() string { return string(e) }

const (
	errBadEditionLength   = headerErr("edition must be exactly 3 bytes")
	errUnsupportedEdition = headerErr("archive edition is newer than this build supports")
	errCommandLineTooLong = headerErr("command-line length exceeds addressable range")
	errTruncatedHeader    = headerErr("truncated archive header")
)
