package dardb

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dar-go/dar/pkg/archive"
	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/slice"
)

// AddArchive opens the reference archive at dir/basename, imports every
// path its catalogue saved, and registers it as a new slot numbered
// slotCount()+1 — the "next archive-number" §4.J's add contract refers
// to. Each imported path's version sequence gets this slot number
// appended, so it immediately becomes that path's most recent provider.
func (d *Database) AddArchive(dir, basename string) error {
	store := slice.NewLocalStore(dir, basename, "dar", 3)
	a, err := archive.Open(archive.Options{Store: store})
	if err != nil {
		return errs.New(errs.KindHardware, "dardb.AddArchive", fmt.Errorf("opening reference archive %s/%s: %w", dir, basename, err))
	}
	defer a.Close()

	slotNum := d.slotCount() + 1
	d.Slots = append(d.Slots, Slot{ID: uuid.New(), Path: dir, Basename: basename})

	err = a.Catalog.Walk(func(fullPath string, e *catalog.Entry) error {
		switch e.Kind {
		case catalog.KindFile, catalog.KindHardlinkMirage:
			status := e.SavedStatus
			if e.Kind == catalog.KindHardlinkMirage && e.Star != nil {
				status = e.Star.SavedStatus
			}
			if status != catalog.Saved {
				return nil
			}
			d.FileIndex[fullPath] = append(d.FileIndex[fullPath], slotNum)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// RemoveSlot erases slot k, renumbers every later slot down by one, and
// drops or renumbers file-index entries accordingly (§4.J "remove").
func (d *Database) RemoveSlot(k int) error {
	if !d.validSlot(k) {
		return errs.New(errs.KindRange, "dardb.RemoveSlot", fmt.Errorf("slot %d out of range [1,%d]", k, d.slotCount()))
	}
	d.Slots = append(d.Slots[:k-1], d.Slots[k:]...)

	for path, versions := range d.FileIndex {
		kept := versions[:0]
		for _, v := range versions {
			switch {
			case v == k:
				// dropped: this path's version in slot k no longer exists
			case v > k:
				kept = append(kept, v-1)
			default:
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(d.FileIndex, path)
		} else {
			d.FileIndex[path] = kept
		}
	}
	return nil
}

// ChangeName replaces slot k's basename (§4.J "change_name").
func (d *Database) ChangeName(k int, name string) error {
	if !d.validSlot(k) {
		return errs.New(errs.KindRange, "dardb.ChangeName", fmt.Errorf("slot %d out of range [1,%d]", k, d.slotCount()))
	}
	d.Slots[k-1].Basename = name
	return nil
}

// SetPath replaces slot k's path (§4.J "set_path").
func (d *Database) SetPath(k int, path string) error {
	if !d.validSlot(k) {
		return errs.New(errs.KindRange, "dardb.SetPath", fmt.Errorf("slot %d out of range [1,%d]", k, d.slotCount()))
	}
	d.Slots[k-1].Path = path
	return nil
}

// SetOptions replaces the global extra dar options (§4.J "set_options").
func (d *Database) SetOptions(args []string) {
	d.ExtraOptions = append([]string(nil), args...)
}

// SetDarPath replaces the dar invocation path (§4.J "set_dar_path").
func (d *Database) SetDarPath(path string) {
	d.DarPath = path
}

// Permute swaps slots a and b, including every file-index entry that
// refers to either one — so the file index keeps pointing at the same
// archive contents after the swap, not the same slot numbers (§4.J
// "permute: swap slot identities including their file-index roles").
func (d *Database) Permute(a, b int) error {
	if !d.validSlot(a) || !d.validSlot(b) {
		return errs.New(errs.KindRange, "dardb.Permute", fmt.Errorf("slot out of range [1,%d]", d.slotCount()))
	}
	if a == b {
		return nil
	}
	d.Slots[a-1], d.Slots[b-1] = d.Slots[b-1], d.Slots[a-1]
	for path, versions := range d.FileIndex {
		for i, v := range versions {
			switch v {
			case a:
				versions[i] = b
			case b:
				versions[i] = a
			}
		}
		d.FileIndex[path] = versions
	}
	return nil
}

// slotArgs renders slot k's {path, basename} as dar's extract-archive
// argument (-x <archive basename>, §4.J / spec.md S4) for Restore's
// invocation of dar.
func slotArgs(s Slot) []string {
	return []string{"-x", filepath.Join(s.Path, s.Basename)}
}
