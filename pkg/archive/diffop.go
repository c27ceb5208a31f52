package archive

import (
	"github.com/dar-go/dar/internal/fsscan"
	"github.com/dar-go/dar/pkg/catalog"
)

// DiffStatus classifies one path's comparison result in Diff's report.
type DiffStatus int

const (
	DiffUnchanged DiffStatus = iota
	DiffAdded
	DiffRemoved
	DiffChanged
)

func (s DiffStatus) String() string {
	switch s {
	case DiffAdded:
		return "added"
	case DiffRemoved:
		return "removed"
	case DiffChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// DiffEntry is one path's outcome from Diff.
type DiffEntry struct {
	Path   string
	Kind   catalog.Kind
	Status DiffStatus
}

// Diff compares a's catalogue against the live filesystem at root,
// reporting every scanned path as unchanged, added, or changed, and
// every catalogue path the scan no longer finds as removed (§4.I
// "Diff"). Unlike Create's reference-diff (which only decides what to
// save), Diff never mutates a's catalogue — it produces a report a
// caller can print or act on.
func (a *Archive) Diff(root string) ([]DiffEntry, error) {
	scanned, err := fsscan.Scan(root)
	if err != nil {
		return nil, err
	}
	catalog.CollapseHardlinks(scanned)

	var report []DiffEntry

	if err := scanned.Walk(func(fullPath string, e *catalog.Entry) error {
		if fullPath == "/" {
			return nil
		}
		ref, ok := a.Catalog.Get(fullPath)
		switch {
		case !ok:
			report = append(report, DiffEntry{Path: fullPath, Kind: e.Kind, Status: DiffAdded})
		case entryDiffers(e, ref):
			report = append(report, DiffEntry{Path: fullPath, Kind: e.Kind, Status: DiffChanged})
		default:
			report = append(report, DiffEntry{Path: fullPath, Kind: e.Kind, Status: DiffUnchanged})
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := a.Catalog.Walk(func(fullPath string, e *catalog.Entry) error {
		if fullPath == "/" {
			return nil
		}
		if _, ok := scanned.Get(fullPath); ok {
			return nil
		}
		report = append(report, DiffEntry{Path: fullPath, Kind: e.Kind, Status: DiffRemoved})
		return nil
	}); err != nil {
		return nil, err
	}

	return report, nil
}

// entryDiffers compares the fields a filesystem rescan can observe
// without reading file contents: kind, size, mtime, mode, and
// ownership. Hard-link entries compare their Star's Attr since a
// mirage's own Attr carries only the inode number.
func entryDiffers(scanned, reference *catalog.Entry) bool {
	if scanned.Kind != reference.Kind {
		return true
	}
	sa, ra := scanned.Attr, reference.Attr
	if scanned.Kind == catalog.KindHardlinkMirage {
		if scanned.Star != nil {
			sa = scanned.Star.Attr
		}
		if reference.Star != nil {
			ra = reference.Star.Attr
		}
	}
	return sa.Size != ra.Size ||
		sa.Mtime != ra.Mtime ||
		sa.Mode != ra.Mode ||
		sa.Owner.Uid != ra.Owner.Uid ||
		sa.Owner.Gid != ra.Owner.Gid
}
