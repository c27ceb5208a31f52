package catalog

import (
	"path"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// DiffOptions tunes CompareAgainstReference's "has this entry changed"
// tie-break (§3 "Tie-break on 'changed'").
type DiffOptions struct {
	// HourTolerance absorbs daylight-saving / filesystem timestamp
	// granularity drift: an mtime difference at or under this duration
	// is treated as unchanged.
	HourTolerance time.Duration
}

// CompareAgainstReference assigns SavedStatus across every entry in
// scanned by comparing it against reference, the catalogue of the
// archive being backed up incrementally (§3 "Diff against a reference
// catalogue", §4.G). scanned is mutated in place:
//
//   - an entry absent from reference, or materially different from its
//     reference counterpart, becomes Saved;
//   - an entry identical in content and metadata becomes NotSaved;
//   - an entry identical in content but with changed metadata becomes
//     InodeOnly;
//   - a path present in reference but absent from scanned gets a
//     KindDeleted marker inserted at the matching position, stamped
//     with deletedAt.
//
// Hard-link groups (filesystem paths sharing one inode, detected via
// Attr.Ino) are collapsed into one Star plus N mirages before the
// comparison runs, so only the group's first member is diffed against
// reference for content; later mirages inherit the same SavedStatus
// and carry no independent data payload (§3 "the second mirage is
// written without a new data payload").
func CompareAgainstReference(scanned, reference *Catalog, opts DiffOptions, deletedAt int64) error {
	CollapseHardlinks(scanned)

	diffedStars := map[*Star]bool{}
	if err := scanned.Walk(func(fullPath string, e *Entry) error {
		if e == scanned.Root {
			return nil
		}
		switch e.Kind {
		case KindFile:
			assignSavedStatus(e, reference, fullPath, opts)
		case KindHardlinkMirage:
			if e.Star != nil && e.Star.RefCount > 0 && e.Etiquette != 0 && !diffedStars[e.Star] {
				diffedStars[e.Star] = true
				assignStarSavedStatus(e, reference, fullPath, opts)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return insertDeletedMarkers(scanned, reference, deletedAt)
}

// CollapseHardlinks groups scanned's file entries sharing a non-zero
// inode number into a single Star with one "mirage-with-inode" entry
// and the rest as "mirage-alone" entries (§3 "hard-link preservation").
// It is safe to call more than once: an entry already turned into a
// mirage no longer has Kind == KindFile, so a repeat pass finds no new
// groups to collapse.
func CollapseHardlinks(scanned *Catalog) {
	groups := map[uint64][]*Entry{}
	_ = scanned.Walk(func(_ string, e *Entry) error {
		if e.Kind == KindFile && e.Attr.Ino != 0 {
			groups[e.Attr.Ino] = append(groups[e.Attr.Ino], e)
		}
		return nil
	})
	for ino, members := range groups {
		if len(members) < 2 {
			continue
		}
		first := members[0]
		star := &Star{
			Attr:            first.Attr,
			DataOffset:      first.DataOffset,
			DataCRC:         first.DataCRC,
			SavedStatus:     first.SavedStatus,
			CompressionAlgo: first.CompressionAlgo,
			RefCount:        len(members),
		}
		etiquette := scanned.NewEtiquette(star)
		for _, m := range members {
			m.Kind = KindHardlinkMirage
			m.Etiquette = etiquette
			m.Star = star
			// A mirage's own Attr is empty; its metadata now lives on
			// the shared Star, matching the wire invariant that only
			// the star carries POSIX metadata.
			m.Attr = fuse.Attr{Ino: ino}
		}
	}
}

func assignSavedStatus(e *Entry, reference *Catalog, fullPath string, opts DiffOptions) {
	ref, ok := reference.Get(fullPath)
	if !ok || ref.Kind != KindFile {
		e.SavedStatus = Saved
		return
	}
	contentChanged := sizeOrFingerprintChanged(e.Attr.Size, ref.Attr.Size, e.EAFingerprint, ref.EAFingerprint) ||
		mtimeChanged(e.Attr.Mtime, ref.Attr.Mtime, opts.HourTolerance)
	if contentChanged {
		e.SavedStatus = Saved
		return
	}
	if metadataChanged(e.Attr, ref.Attr) {
		e.SavedStatus = InodeOnly
		return
	}
	e.SavedStatus = NotSaved
}

func assignStarSavedStatus(e *Entry, reference *Catalog, fullPath string, opts DiffOptions) {
	ref, ok := reference.Get(fullPath)
	if !ok || (ref.Kind != KindFile && ref.Kind != KindHardlinkMirage) {
		e.Star.SavedStatus = Saved
		return
	}
	refAttr := ref.Attr
	refSize, refFP := ref.Attr.Size, ref.EAFingerprint
	if ref.Kind == KindHardlinkMirage && ref.Star != nil {
		refAttr = ref.Star.Attr
		refSize, refFP = ref.Star.Attr.Size, 0
	}
	contentChanged := sizeOrFingerprintChanged(e.Star.Attr.Size, refSize, 0, refFP) ||
		mtimeChanged(e.Star.Attr.Mtime, refAttr.Mtime, opts.HourTolerance)
	if contentChanged {
		e.Star.SavedStatus = Saved
		return
	}
	if metadataChanged(e.Star.Attr, refAttr) {
		e.Star.SavedStatus = InodeOnly
		return
	}
	e.Star.SavedStatus = NotSaved
}

func sizeOrFingerprintChanged(size, refSize uint64, fp, refFP uint64) bool {
	if size != refSize {
		return true
	}
	return fp != 0 && refFP != 0 && fp != refFP
}

func mtimeChanged(mtime, refMtime uint64, tolerance time.Duration) bool {
	if tolerance <= 0 {
		return mtime != refMtime
	}
	delta := int64(mtime) - int64(refMtime)
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Second > tolerance
}

// metadataChanged compares the metadata fields a changed mtime doesn't
// already cover: permissions, ownership, and the inode-change time.
func metadataChanged(a, b fuse.Attr) bool {
	return a.Mode != b.Mode ||
		a.Owner.Uid != b.Owner.Uid ||
		a.Owner.Gid != b.Owner.Gid ||
		a.Ctime != b.Ctime ||
		a.Ctimensec != b.Ctimensec
}

// insertDeletedMarkers walks reference and, for every path reference
// has that scanned does not, inserts a KindDeleted entry into scanned
// at the matching parent directory (§3 "entries present in the
// reference but absent in the filesystem become deleted markers").
func insertDeletedMarkers(scanned, reference *Catalog, deletedAt int64) error {
	return reference.Walk(func(fullPath string, e *Entry) error {
		if e == reference.Root {
			return nil
		}
		if _, ok := scanned.Get(fullPath); ok {
			return nil
		}
		parentPath := path.Dir(fullPath)
		parent, ok := scanned.Get(parentPath)
		if !ok || !parent.IsDir() {
			// Parent itself was removed; its own deleted marker
			// (visited separately, parent-first in Walk's pre-order)
			// already covers this subtree.
			return nil
		}
		return scanned.Insert(parentPath, &Entry{
			Name:      e.Name,
			Kind:      KindDeleted,
			DeletedAt: deletedAt,
		})
	})
}
