package dardb

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/dar-go/dar/pkg/errs"
)

// RestoreResult is one requested path's outcome from Restore.
type RestoreResult struct {
	Path    string
	Skipped bool // absent from the file index: warned, not attempted
	Output  []byte
	Err     error
}

// Restore consults the file index for each requested path, finds the
// slot that last saved it, and invokes dar (§4.J "restore": "invoke dar
// via dar_invocation_path with extra_options_for_dar + slot_arguments +
// path"), the same way beam-cloud-clip's overlay/mount commands shell
// out to an external binary rather than reimplementing its behavior.
// An absolute path is a caller error and aborts the whole call; a path
// missing from the index is only warned about and skipped, so the rest
// of the batch still proceeds.
func (d *Database) Restore(paths []string) ([]RestoreResult, error) {
	darPath := d.DarPath
	if darPath == "" {
		darPath = "dar"
	}

	results := make([]RestoreResult, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) {
			return results, errs.New(errs.KindRange, "dardb.Restore", fmt.Errorf("restore path %q must be relative", p))
		}

		slotNum := d.mostRecentSlot(p)
		if slotNum == 0 {
			results = append(results, RestoreResult{Path: p, Skipped: true})
			continue
		}

		args := append([]string(nil), d.ExtraOptions...)
		args = append(args, slotArgs(d.Slots[slotNum-1])...)
		args = append(args, p)

		cmd := exec.Command(darPath, args...)
		out, err := cmd.CombinedOutput()
		res := RestoreResult{Path: p, Output: out}
		if err != nil {
			res.Err = errs.New(errs.KindScript, "dardb.Restore", fmt.Errorf("dar restore of %q failed: %w", p, err))
		}
		results = append(results, res)
	}
	return results, nil
}
