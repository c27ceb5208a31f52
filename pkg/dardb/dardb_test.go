package dardb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.dmd")

	db, err := Create(path)
	require.NoError(t, err)
	require.Empty(t, db.Slots)

	_, err = Create(path)
	require.Error(t, err, "creating over an existing database must fail")

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, db.Slots, reopened.Slots)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Path: "/backups/mon", Basename: "full"}, {Path: "/backups/tue", Basename: "incr"}}
	d.DarPath = "/usr/bin/dar"
	d.ExtraOptions = []string{"-Q", "-v"}
	d.FileIndex = map[string][]int{
		"etc/passwd": {1},
		"home/a.txt": {1, 2},
		"var/log/x":  {2},
	}

	raw, err := d.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, got.Slots, len(d.Slots))
	for i, s := range d.Slots {
		require.Equal(t, s.Path, got.Slots[i].Path)
		require.Equal(t, s.Basename, got.Slots[i].Basename)
	}
	require.Equal(t, d.DarPath, got.DarPath)
	require.Equal(t, d.ExtraOptions, got.ExtraOptions)
	require.Equal(t, d.FileIndex, got.FileIndex)
}

func TestRemoveSlotRenumbersFileIndex(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Basename: "a"}, {Basename: "b"}, {Basename: "c"}}
	d.FileIndex = map[string][]int{
		"only-in-2":   {2},
		"in-1-and-3":  {1, 3},
		"in-2-then-3": {2, 3},
	}

	require.NoError(t, d.RemoveSlot(2))
	require.Len(t, d.Slots, 2)
	require.Equal(t, "a", d.Slots[0].Basename)
	require.Equal(t, "c", d.Slots[1].Basename)

	_, stillPresent := d.FileIndex["only-in-2"]
	require.False(t, stillPresent, "a path only ever saved by the removed slot drops out entirely")
	require.Equal(t, []int{1, 2}, d.FileIndex["in-1-and-3"], "slot 3 renumbers down to 2")
	require.Equal(t, []int{2}, d.FileIndex["in-2-then-3"], "slot 2's own entry is dropped, slot 3's renumbers to 2")
}

func TestRemoveSlotOutOfRange(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Basename: "a"}}
	require.Error(t, d.RemoveSlot(0))
	require.Error(t, d.RemoveSlot(2))
}

func TestPermuteSwapsSlotsAndFileIndex(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Basename: "a"}, {Basename: "b"}}
	d.FileIndex = map[string][]int{
		"x": {1},
		"y": {2},
		"z": {1, 2},
	}

	require.NoError(t, d.Permute(1, 2))
	require.Equal(t, "b", d.Slots[0].Basename)
	require.Equal(t, "a", d.Slots[1].Basename)
	require.Equal(t, []int{2}, d.FileIndex["x"])
	require.Equal(t, []int{1}, d.FileIndex["y"])
	require.Equal(t, []int{2, 1}, d.FileIndex["z"])
}

func TestShowMostRecentStats(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Basename: "a"}, {Basename: "b"}}
	d.FileIndex = map[string][]int{
		"p1": {1},
		"p2": {1, 2},
		"p3": {2},
	}
	stats := d.ShowMostRecentStats()
	require.Equal(t, 1, stats[1])
	require.Equal(t, 2, stats[2])
}

func TestRestoreRejectsAbsolutePath(t *testing.T) {
	d := New()
	_, err := d.Restore([]string{"/etc/passwd"})
	require.Error(t, err)
}

func TestRestoreSkipsUnindexedPath(t *testing.T) {
	d := New()
	d.Slots = []Slot{{Basename: "a"}}
	results, err := d.Restore([]string{"never/saved.txt"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Skipped)
}

func TestSlotArgsEmitsExtractFlag(t *testing.T) {
	args := slotArgs(Slot{Path: "/backups/mon", Basename: "full"})
	require.Equal(t, []string{"-x", filepath.Join("/backups/mon", "full")}, args)
}
