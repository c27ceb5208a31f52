package dardb

import "sort"

// ContentsRow is one line of ShowContents' slot table.
type ContentsRow struct {
	Slot     int
	Path     string
	Basename string
}

// ShowContents lists every slot in position order (§4.J "show_contents").
func (d *Database) ShowContents() []ContentsRow {
	rows := make([]ContentsRow, 0, d.slotCount())
	for i, s := range d.Slots {
		rows = append(rows, ContentsRow{Slot: i + 1, Path: s.Path, Basename: s.Basename})
	}
	return rows
}

// ShowFiles lists every path a slot contributes a version of. k == 0
// lists every known path regardless of slot (§4.J "show_files").
func (d *Database) ShowFiles(k int) []string {
	var out []string
	for path, versions := range d.FileIndex {
		if k == 0 {
			out = append(out, path)
			continue
		}
		for _, v := range versions {
			if v == k {
				out = append(out, path)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ShowVersion lists, oldest first, every slot number that holds a
// version of path (§4.J "show_version").
func (d *Database) ShowVersion(path string) []int {
	versions := d.FileIndex[path]
	out := make([]int, len(versions))
	copy(out, versions)
	return out
}

// ShowMostRecentStats counts, per slot, how many indexed paths have
// that slot as their most recent provider (§4.J "show_most_recent_stats").
func (d *Database) ShowMostRecentStats() map[int]int {
	stats := make(map[int]int, d.slotCount())
	for path := range d.FileIndex {
		if slot := d.mostRecentSlot(path); slot != 0 {
			stats[slot]++
		}
	}
	return stats
}
