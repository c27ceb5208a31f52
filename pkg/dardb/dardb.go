// Package dardb implements the archive database (§4.J "dar_manager"): a
// small persistent index that remembers, across a sequence of archives
// produced by pkg/archive, which archive holds the most recent version
// of any given logical path — so a caller can restore a tree's current
// state by pulling each file from whichever archive last saved it,
// without having to know which archive that was.
//
// The database itself never touches archive payloads; it only reads a
// reference archive's catalogue (via pkg/archive.Open) to learn which
// paths it contributes, the same way beam-cloud-clip's ClipArchiver
// composes a thin index on top of an otherwise-opaque archive format.
package dardb

import "github.com/google/uuid"

// Slot is one archive registered with the database, numbered 1..N by
// its position. Removing or permuting slots renumbers/reassigns these
// positions, so position alone can't identify a slot across an
// operation; ID is a process-local handle a caller can hold onto
// (e.g. across a batch of log lines) that stays attached to the same
// {Path, Basename} pair even as its position changes. It is never
// persisted — §6's "database file format" only ever puts {path,
// basename} on the wire — and is reassigned fresh on every Decode.
type Slot struct {
	ID       uuid.UUID
	Path     string
	Basename string
}

// Database is the in-memory state of one dar_manager instance (§4.J):
// an ordered slot list, the dar binary invocation path and its extra
// options, and a file index mapping every known logical path to the
// ordered sequence of slot numbers that hold a version of it (oldest
// first, so the last element is always the most recent provider).
type Database struct {
	Slots        []Slot
	DarPath      string
	ExtraOptions []string
	FileIndex    map[string][]int

	// sessionID is assigned fresh by New and Open; it never reaches the
	// persisted wire format (§6 "database file format" has no field for
	// it), and no other code reads it.
	sessionID uuid.UUID
}

// New returns an empty, unattached database (§4.J "create").
func New() *Database {
	return &Database{
		FileIndex: map[string][]int{},
		sessionID: uuid.New(),
	}
}

// slotCount reports N, the number of live slots.
func (d *Database) slotCount() int { return len(d.Slots) }

// validSlot reports whether k is a valid 1-based slot number.
func (d *Database) validSlot(k int) bool { return k >= 1 && k <= d.slotCount() }

// mostRecentSlot returns the slot number that currently holds the
// newest version of path, or 0 if path is not in the index.
func (d *Database) mostRecentSlot(relPath string) int {
	versions := d.FileIndex[relPath]
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}
