package slice

import (
	"io"
	"os"

	"github.com/dar-go/dar/pkg/errs"
)

// PipeStore substitutes a pair of named pipes for disk files when the
// basename is "-" (§4.C): one FIFO carries the bytes in the write
// direction, the other in the read direction. Unlike LocalStore/S3Store it
// is single-slice by construction — an archive streamed through pipes is
// always exactly one logical slice regardless of slice_size, since there is
// no way to reopen a FIFO at an arbitrary offset.
type PipeStore struct {
	In  *os.File // read side, used when the Set is in read mode
	Out *os.File // write side, used when the Set is in write mode
}

func (p *PipeStore) Name() string { return "-" }

func (p *PipeStore) Exists(idx int) bool { return idx == 1 }

func (p *PipeStore) ReadSlice(idx int) (io.ReadCloser, error) {
	if idx != 1 {
		return nil, errs.New(errs.KindFeature, "slice.PipeStore.ReadSlice",
			errFeaturePipeRandomAccess)
	}
	return io.NopCloser(p.In), nil
}

func (p *PipeStore) WriteSlice(idx int, content []byte) error {
	if idx != 1 {
		return errs.New(errs.KindFeature, "slice.PipeStore.WriteSlice", errFeaturePipeRandomAccess)
	}
	if _, err := p.Out.Write(content); err != nil {
		return errs.New(errs.KindHardware, "slice.PipeStore.WriteSlice", err)
	}
	return nil
}

var errFeaturePipeRandomAccess = errPipeRandomAccess{}

type errPipeRandomAccess struct{}

func (errPipeRandomAccess) Error() string {
	return "seeking backwards on a pipe-backed archive requires sequential-read mode"
}
