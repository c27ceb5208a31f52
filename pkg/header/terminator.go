package header

import (
	"bytes"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// terminatorMagic is a short sanity tag following the catalogue-start
// bignum, so a reader that lands on the terminator by the byte-count
// trick below can confirm it found the right bytes rather than noise.
const terminatorMagic = "DAT"

// WriteTerminator appends the end-of-archive trailer (§4.H): the
// bignum offset of the catalogue's first byte, the magic, and a final
// single byte giving the trailer's own total length. That length byte
// is what lets LocateTerminator find the trailer's start by seeking backward
// from end-of-file without a separate index — a bignum is
// self-delimiting forward but not backward, so this package adds the
// one piece of reverse-navigable framing the terminator needs.
func WriteTerminator(ch stream.Channel, catalogStart *bignum.Int) error {
	var buf bytes.Buffer
	if err := catalogStart.Dump(&buf); err != nil {
		return err
	}
	buf.WriteString(terminatorMagic)
	if buf.Len() > 255 {
		return errs.New(errs.KindFeature, "header.WriteTerminator", errTerminatorTooLarge)
	}
	if _, err := ch.Write(buf.Bytes()); err != nil {
		return errs.New(errs.KindHardware, "header.WriteTerminator", err)
	}
	if _, err := ch.Write([]byte{byte(buf.Len())}); err != nil {
		return errs.New(errs.KindHardware, "header.WriteTerminator", err)
	}
	return nil
}

// LocateTerminator opens ch at end-of-file, reads the final length
// byte, seeks back over the trailer it describes, and parses the
// catalogue-start offset out of it (§4.H "located by reading the
// file's last bytes"). ch must support absolute Skip; in practice this
// is the last slice of the slice-set, opened read-write or read-only.
func LocateTerminator(ch stream.Channel) (*bignum.Int, error) {
	if err := ch.SkipToEOF(); err != nil {
		return nil, err
	}
	end := ch.Position()

	one := bignum.FromUint64(1)
	lastBytePos, err := end.Sub(one)
	if err != nil {
		return nil, errs.New(errs.KindData, "header.LocateTerminator", errArchiveTooShort)
	}
	if err := ch.Skip(lastBytePos); err != nil {
		return nil, err
	}
	var lenByte [1]byte
	if err := readFull(ch, lenByte[:]); err != nil {
		return nil, err
	}
	trailerLen := uint64(lenByte[0])

	trailerStart, err := end.Sub(bignum.FromUint64(trailerLen + 1))
	if err != nil {
		return nil, errs.New(errs.KindData, "header.LocateTerminator", errArchiveTooShort)
	}
	if err := ch.Skip(trailerStart); err != nil {
		return nil, err
	}
	trailer := make([]byte, trailerLen)
	if err := readFull(ch, trailer); err != nil {
		return nil, err
	}

	r := bytes.NewReader(trailer)
	catalogStart, err := bignum.Read(r)
	if err != nil {
		return nil, err
	}
	magic := make([]byte, len(terminatorMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != terminatorMagic {
		return nil, errs.New(errs.KindData, "header.LocateTerminator", errBadTerminatorMagic)
	}
	return catalogStart, nil
}

const (
	errTerminatorTooLarge = headerErr("terminator trailer exceeds the 255-byte reverse-seek encoding")
	errArchiveTooShort    = headerErr("archive too short to contain a terminator")
	errBadTerminatorMagic = headerErr("terminator magic mismatch: archive was not finalized")
)
