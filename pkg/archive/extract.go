package archive

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// OverwritePolicy governs what Extract does when a destination path
// already exists (§7 "overwrite prompt").
type OverwritePolicy int

const (
	// OverwriteAsk consults Confirm for every collision.
	OverwriteAsk OverwritePolicy = iota
	// OverwriteAlways replaces existing paths without asking.
	OverwriteAlways
	// OverwriteNever skips any path that already exists.
	OverwriteNever
)

// ExtractOptions configures Extract.
type ExtractOptions struct {
	DestRoot string
	Policy   OverwritePolicy
	Confirm  func(fullPath string) (bool, error) // consulted when Policy == OverwriteAsk
	Filter   Mask
}

// Extract restores every Saved entry under a.Catalog into dest,
// recreating directories and symlinks directly, and streaming every
// Saved regular file's (and hard-link star's) data back through one
// shared pipeline via forEachSavedFile before hard-linking the
// remaining mirages of each group (§4.I "Extract").
func (a *Archive) Extract(opts ExtractOptions) error {
	filter := opts.Filter
	if filter == nil {
		filter = AlwaysMask{}
	}

	if err := a.extractStructure(opts, filter); err != nil {
		return err
	}

	firstPath := map[*catalog.Star]string{}
	if err := a.forEachSavedFile(func(fullPath string, e *catalog.Entry, size uint64, r stream.Channel) error {
		if !filter.Covers(fullPath) {
			return drainN(r, size)
		}
		dest := filepath.Join(opts.DestRoot, fullPath)
		ok, err := shouldWrite(dest, opts)
		if err != nil {
			return err
		}
		if !ok {
			return drainN(r, size)
		}
		mode := e.Attr.Mode
		if e.Kind == catalog.KindHardlinkMirage {
			mode = e.Star.Attr.Mode
			firstPath[e.Star] = dest
		}
		return extractOneFile(dest, mode, size, r)
	}); err != nil {
		return err
	}

	return a.linkRemainingMirages(opts, filter, firstPath)
}

// extractStructure creates every directory and symlink up front, in
// catalogue pre-order, so later mirage hard-links always have a
// parent directory to land in regardless of walk order.
func (a *Archive) extractStructure(opts ExtractOptions, filter Mask) error {
	return a.Catalog.Walk(func(fullPath string, e *catalog.Entry) error {
		if fullPath == "/" || !filter.Covers(fullPath) {
			return nil
		}
		dest := filepath.Join(opts.DestRoot, fullPath)
		switch e.Kind {
		case catalog.KindDir:
			return os.MkdirAll(dest, os.FileMode(e.Attr.Mode&0o7777))
		case catalog.KindSymlink:
			ok, err := shouldWrite(dest, opts)
			if err != nil || !ok {
				return err
			}
			os.Remove(dest)
			return os.Symlink(e.Target, dest)
		}
		return nil
	})
}

// linkRemainingMirages hard-links every mirage after the group's
// first occurrence to the path the first occurrence was extracted to.
func (a *Archive) linkRemainingMirages(opts ExtractOptions, filter Mask, firstPath map[*catalog.Star]string) error {
	return a.Catalog.Walk(func(fullPath string, e *catalog.Entry) error {
		if e.Kind != catalog.KindHardlinkMirage || !filter.Covers(fullPath) {
			return nil
		}
		first, ok := firstPath[e.Star]
		dest := filepath.Join(opts.DestRoot, fullPath)
		if !ok || first == dest {
			return nil
		}
		if ok, err := shouldWrite(dest, opts); err != nil || !ok {
			return err
		}
		os.Remove(dest)
		return os.Link(first, dest)
	})
}

func shouldWrite(dest string, opts ExtractOptions) (bool, error) {
	if _, err := os.Lstat(dest); err != nil {
		return true, nil // doesn't exist yet
	}
	switch opts.Policy {
	case OverwriteAlways:
		return true, nil
	case OverwriteNever:
		return false, nil
	default:
		if opts.Confirm == nil {
			return false, nil
		}
		return opts.Confirm(dest)
	}
}

func extractOneFile(dest string, mode uint32, size uint64, r stream.Channel) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(mode&0o7777))
	if err != nil {
		drainN(r, size)
		return errs.New(errs.KindHardware, "archive.extractOneFile", err)
	}
	defer out.Close()
	return copyN(out, r, size)
}

// copyN copies exactly n clear bytes from r to w. r's Read contract
// (§4.B) treats a short/zero return with no error as EOF, which here
// means the archive is shorter than its own catalogue claims.
func copyN(w io.Writer, r stream.Channel, n uint64) error {
	buf := make([]byte, 64*1024)
	var got uint64
	for got < n {
		want := uint64(len(buf))
		if remain := n - got; remain < want {
			want = remain
		}
		rn, err := r.Read(buf[:want])
		if rn > 0 {
			if _, werr := w.Write(buf[:rn]); werr != nil {
				return errs.New(errs.KindHardware, "archive.copyN", werr)
			}
			got += uint64(rn)
		}
		if err != nil || rn == 0 {
			if got < n {
				return errs.New(errs.KindData, "archive.copyN", errTruncatedFileData)
			}
			break
		}
	}
	return nil
}

// drainN discards n clear bytes from r without writing them anywhere,
// keeping the shared pipeline positioned correctly for the next
// entry when a caller skips this one (filtered out, or declined an
// overwrite prompt).
func drainN(r stream.Channel, n uint64) error {
	return copyN(io.Discard, r, n)
}
