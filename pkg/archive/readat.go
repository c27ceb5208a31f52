package archive

import (
	"fmt"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/errs"
)

// ReadAt serves one random-access read of a Saved entry's data,
// which pkg/archivefs needs for FUSE's offset-addressed Read callback
// (unlike Extract/Test/Diff, which only ever need to walk every Saved
// entry once in catalogue order via forEachSavedFile). It reopens a
// fresh data pipeline anchored at dataStart for every call and skips
// directly to the entry's recorded offset plus off — valid precisely
// because a freshly opened pipeline's clear-zero lines up with
// dataStart the same way the original write-side pipeline's did.
func (a *Archive) ReadAt(e *catalog.Entry, buf []byte, off int64) (int, error) {
	base := e.DataOffset
	if e.Kind == catalog.KindHardlinkMirage {
		if e.Star == nil {
			return 0, errs.New(errs.KindBug, "archive.ReadAt", fmt.Errorf("hard-link mirage has no star"))
		}
		base = e.Star.DataOffset
	}
	if base == nil {
		return 0, errs.New(errs.KindRange, "archive.ReadAt", fmt.Errorf("entry has no saved data"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pipeline, err := a.openDataPipeline()
	if err != nil {
		return 0, err
	}
	target := base.Clone().Add(bignum.FromUint64(uint64(off)))
	if err := pipeline.Skip(target); err != nil {
		return 0, err
	}
	return pipeline.Read(buf)
}
