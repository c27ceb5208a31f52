// Package fsscan is the OS-adapter collaborator that turns a live
// directory tree into a pkg/catalog.Catalog, the way
// beam-cloud-clip's populateIndex turns one into a btree index — same
// godirwalk walk, same raw unix.Stat_t metadata extraction, aimed at
// Catalog.Insert instead of a flat ClipNode index.
package fsscan

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/karrick/godirwalk"
	"golang.org/x/sys/unix"

	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/errs"
)

// Scan walks sourceRoot and returns a freshly populated Catalog rooted
// at "/", with every entry's SavedStatus left at its zero value
// (Saved) — callers that need incremental semantics run
// catalog.CompareAgainstReference over the result.
func Scan(sourceRoot string) (*catalog.Catalog, error) {
	c := catalog.New()

	err := godirwalk.Walk(sourceRoot, &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if p == sourceRoot {
				return nil
			}
			rel := "/" + strings.TrimPrefix(strings.TrimPrefix(p, sourceRoot), string(filepath.Separator))
			rel = path.Clean(rel)

			var stat unix.Stat_t
			var statErr error
			if de.IsSymlink() {
				statErr = unix.Lstat(p, &stat)
			} else {
				statErr = unix.Stat(p, &stat)
			}
			if statErr != nil {
				return errs.New(errs.KindHardware, "fsscan.Scan", fmt.Errorf("stat %s: %w", p, statErr))
			}

			entry, err := buildEntry(p, de, stat)
			if err != nil {
				return err
			}

			parentPath := path.Dir(rel)
			return c.Insert(parentPath, entry)
		},
		Unsorted: false,
	})
	if err != nil {
		return nil, errs.New(errs.KindHardware, "fsscan.Scan", err)
	}
	return c, nil
}

func buildEntry(p string, de *godirwalk.Dirent, stat unix.Stat_t) (*catalog.Entry, error) {
	attr := fuse.Attr{
		Ino:       stat.Ino,
		Size:      uint64(stat.Size),
		Blocks:    uint64(stat.Blocks),
		Atime:     uint64(stat.Atim.Sec),
		Atimensec: uint32(stat.Atim.Nsec),
		Mtime:     uint64(stat.Mtim.Sec),
		Mtimensec: uint32(stat.Mtim.Nsec),
		Ctime:     uint64(stat.Ctim.Sec),
		Ctimensec: uint32(stat.Ctim.Nsec),
		Mode:      stat.Mode,
		Nlink:     uint32(stat.Nlink),
		Owner:     fuse.Owner{Uid: stat.Uid, Gid: stat.Gid},
	}

	e := &catalog.Entry{Name: filepath.Base(p), Attr: attr, EAFingerprint: eaFingerprint(p)}

	switch {
	case de.IsDir():
		e.Kind = catalog.KindDir
	case de.IsSymlink():
		target, err := os.Readlink(p)
		if err != nil {
			return nil, errs.New(errs.KindHardware, "fsscan.buildEntry", fmt.Errorf("readlink %s: %w", p, err))
		}
		e.Kind = catalog.KindSymlink
		e.Target = target
	case stat.Mode&unix.S_IFMT == unix.S_IFCHR:
		e.Kind = catalog.KindCharDevice
		e.Major, e.Minor = unix.Major(uint64(stat.Rdev)), unix.Minor(uint64(stat.Rdev))
	case stat.Mode&unix.S_IFMT == unix.S_IFBLK:
		e.Kind = catalog.KindBlockDevice
		e.Major, e.Minor = unix.Major(uint64(stat.Rdev)), unix.Minor(uint64(stat.Rdev))
	case stat.Mode&unix.S_IFMT == unix.S_IFIFO:
		e.Kind = catalog.KindNamedPipe
	case stat.Mode&unix.S_IFMT == unix.S_IFSOCK:
		e.Kind = catalog.KindSocket
	default:
		e.Kind = catalog.KindFile
	}
	return e, nil
}

// eaFingerprint hashes the extended-attribute name list on p (empty on
// platforms/files with none) so the diff tie-break (§4.G "EA
// fingerprint") can detect an EA-only change without reading every
// attribute's value.
func eaFingerprint(p string) uint64 {
	names, err := unix.Listxattr(p, nil)
	if err != nil || names <= 0 {
		return 0
	}
	buf := make([]byte, names)
	n, err := unix.Listxattr(p, buf)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(buf[:n])
}
