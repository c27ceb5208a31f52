// Package catalog implements the in-memory entry tree of §4.G: the
// directory/file/symlink/device/pipe/socket/hard-link tree every archive
// carries alongside its data, plus its dump/read framing and its diff
// logic against a reference catalogue.
package catalog

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/crc"
)

// Kind is the one-byte signature tagging a catalogue entry's type on the
// wire (§3 "catalogue entry (polymorphic)").
type Kind byte

const (
	KindDir Kind = iota + 1
	KindFile
	KindSymlink
	KindCharDevice
	KindBlockDevice
	KindNamedPipe
	KindSocket
	KindHardlinkStar
	KindHardlinkMirage
	KindDeleted
	KindIgnored
	KindIgnoredDir
	KindEOD
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindCharDevice:
		return "char-device"
	case KindBlockDevice:
		return "block-device"
	case KindNamedPipe:
		return "named-pipe"
	case KindSocket:
		return "unix-socket"
	case KindHardlinkStar:
		return "hardlink-star"
	case KindHardlinkMirage:
		return "hardlink-mirage"
	case KindDeleted:
		return "deleted-marker"
	case KindIgnored:
		return "ignored"
	case KindIgnoredDir:
		return "ignored-dir"
	case KindEOD:
		return "eod"
	default:
		return "unknown"
	}
}

// knownKinds is the closed set Read validates every wire signature
// against (§4.G "reading fails on: signature not in the known set").
var knownKinds = map[Kind]bool{
	KindDir: true, KindFile: true, KindSymlink: true,
	KindCharDevice: true, KindBlockDevice: true,
	KindNamedPipe: true, KindSocket: true,
	KindHardlinkStar: true, KindHardlinkMirage: true,
	KindDeleted: true, KindIgnored: true, KindIgnoredDir: true,
	KindEOD: true,
}

// SavedStatus governs whether an entry's data/EA/delta bytes are present
// in the archive (§3 "Saved status").
type SavedStatus byte

const (
	Saved SavedStatus = iota
	InodeOnly
	NotSaved
	Delta
	Fake
)

func (s SavedStatus) String() string {
	switch s {
	case Saved:
		return "saved"
	case InodeOnly:
		return "inode-only"
	case NotSaved:
		return "not-saved"
	case Delta:
		return "delta"
	case Fake:
		return "fake"
	default:
		return "unknown"
	}
}

// Entry is one node of the catalogue tree. Fields not meaningful for a
// given Kind are left zero; which fields matter is determined entirely by
// Kind, matching the tagged-union shape §3's entry table describes.
type Entry struct {
	Name string
	Kind Kind
	Attr fuse.Attr // POSIX metadata: uid/gid/mode/size/times, the same struct beam-cloud-clip's ClipNode carries

	// directory
	Children []*Entry // ordered, insertion order (§3 invariant: unique names within a directory)

	// symlink
	Target string

	// char/block device
	Major, Minor uint32

	// file
	DataOffset      *bignum.Int
	DataCRC         crc.Stamp
	SavedStatus     SavedStatus
	CompressionAlgo compress.Algorithm
	DeltaSignature  []byte
	EAFingerprint   uint64 // xxhash of the extended-attribute set, used by the diff tie-break

	// hard-link star / mirage
	Etiquette uint64
	Star      *Star // set on a mirage once resolved; nil on a star itself

	// deleted marker
	DeletedAt int64 // unix seconds
}

// IsDir reports whether e is a directory.
func (e *Entry) IsDir() bool { return e.Kind == KindDir }

// Star is the reference-counted inode payload shared by every hard-link
// mirage for one etiquette (§3 "hard-link star"/"hard-link mirage").
type Star struct {
	Etiquette uint64
	Attr      fuse.Attr
	DataOffset      *bignum.Int
	DataCRC         crc.Stamp
	SavedStatus     SavedStatus
	CompressionAlgo compress.Algorithm
	RefCount        int
}
