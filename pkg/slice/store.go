// Package slice implements channel B (pkg/stream.Channel) over one or more
// fixed-size slice files, per §4.C. A Set exposes a logically contiguous
// byte stream; the Store interface abstracts over where the physical
// slices live (local disk, S3, or a pair of named pipes for the "-"
// basename), the way the teacher's clip format abstracts local vs. S3
// vs. OCI-registry backed storage behind one interface (pkg/v2/storage.go).
package slice

import "io"

// Store is the physical slice backend. Index is 1-based, matching the
// on-disk <basename>.<N>.<ext> naming of §4.C.
type Store interface {
	// Name identifies the store for logging/error messages.
	Name() string
	// Exists reports whether slice idx is already present.
	Exists(idx int) bool
	// ReadSlice opens slice idx for sequential reading from its start.
	ReadSlice(idx int) (io.ReadCloser, error)
	// WriteSlice persists the full contents of a finalized slice (header
	// and payload together). Slices are written once, in order: the Set
	// buffers each slice's payload in memory up to slice_size before
	// calling WriteSlice, so stores never need to support partial
	// appends or seeking.
	WriteSlice(idx int, content []byte) error
}
