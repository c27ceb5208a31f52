package dardb

import (
	"fmt"

	"github.com/gofrs/flock"

	"github.com/dar-go/dar/pkg/errs"
)

// withLock serializes access to the database file at dmdPath across
// concurrent dar_manager invocations: one process rewriting the file
// while another reads it would otherwise observe a torn write (§5
// "shared resources" extends the same exclusivity rule the destination
// slice-set gets during Create to this second persisted artifact). The
// lock is advisory and held only for the duration of fn.
func withLock(dmdPath string, fn func() error) error {
	lockPath := dmdPath + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return errs.New(errs.KindHardware, "dardb.withLock", err)
	}
	if !locked {
		return errs.New(errs.KindScript, "dardb.withLock", fmt.Errorf("database %q is locked by another process", dmdPath))
	}
	defer fl.Unlock()
	return fn()
}
