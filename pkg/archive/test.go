package archive

import (
	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/crc"
	"github.com/dar-go/dar/pkg/stream"
)

// TestFailure records one entry whose stored CRC didn't match its
// decompressed/decrypted bytes (§4.I "Test").
type TestFailure struct {
	Path     string
	Expected crc.Stamp
	Got      crc.Stamp
}

// Test reads every Saved file's data back through the archive's
// pipeline and recomputes its CRC, reporting every mismatch rather
// than stopping at the first — a corrupted archive is still worth
// knowing the full extent of (§4.E "corruption recovery").
func (a *Archive) Test() ([]TestFailure, error) {
	var failures []TestFailure

	err := a.forEachSavedFile(func(fullPath string, e *catalog.Entry, size uint64, r stream.Channel) error {
		r.ResetCRC(dataCRCWidth)
		if err := drainN(r, size); err != nil {
			return err
		}
		want := e.DataCRC
		if e.Kind == catalog.KindHardlinkMirage {
			want = e.Star.DataCRC
		}
		got := r.GetCRC()
		if want != nil && !crc.Equal(want, got) {
			failures = append(failures, TestFailure{Path: fullPath, Expected: want, Got: got})
		}
		return nil
	})
	if err != nil {
		return failures, err
	}
	return failures, nil
}
