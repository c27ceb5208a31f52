package dardb

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dar-go/dar/pkg/errs"
)

// Create makes a fresh, empty database at path and persists it, failing
// if a database already lives there (§4.J "create": "file already
// exists without overwrite").
func Create(path string) (*Database, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errs.New(errs.KindRange, "dardb.Create", fmt.Errorf("database %q already exists", path))
	}
	d := New()
	if err := d.save(path); err != nil {
		return nil, err
	}
	return d, nil
}

// Open attaches to an existing database file (§4.J "attach to existing
// database, required by all other actions").
func Open(path string) (*Database, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Open", err)
	}
	d, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	d.sessionID = uuid.New()
	return d, nil
}

// Save persists d back to path under an advisory lock, atomically
// replacing any prior contents (§4.J: "every mutating operation writes
// a fresh compressed stream").
func (d *Database) Save(path string) error {
	return withLock(path, func() error { return d.save(path) })
}

// save writes d's encoded form to a sibling temp file tagged with a
// fresh uuid and renames it over path, so a reader never observes a
// partially-written database even without the lock (belt-and-suspenders
// alongside withLock, since flock is advisory and a concurrent reader
// might not honor it).
func (d *Database) save(path string) error {
	raw, err := d.Encode()
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.New())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.New(errs.KindHardware, "dardb.save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.New(errs.KindHardware, "dardb.save", err)
	}
	return nil
}
