// Package archivefs exposes an opened archive (pkg/archive.Archive) as a
// read-only FUSE filesystem, the way beam-cloud-clip's pkg/clipfs mounts
// a ClipStorageInterface — same go-fuse/v2 fs.Inode/FSNode shape, aimed
// at a catalogue entry instead of a ClipNode.
package archivefs

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/dar-go/dar/pkg/archive"
)

// FileSystem adapts one opened Archive to go-fuse's root-node contract.
type FileSystem struct {
	a    *archive.Archive
	root *FSNode
}

// New builds a FileSystem over an already-Open archive.
func New(a *archive.Archive) (*FileSystem, error) {
	rootEntry, ok := a.Catalog.Get("/")
	if !ok {
		return nil, fmt.Errorf("archivefs: archive catalogue has no root entry")
	}
	fsys := &FileSystem{a: a}
	fsys.root = &FSNode{fsys: fsys, path: "/", entry: rootEntry}
	return fsys, nil
}

// Root returns the root node as go-fuse's fs.InodeEmbedder, handed
// straight to fs.NewNodeFS by whatever mounts this filesystem.
func (f *FileSystem) Root() (fs.InodeEmbedder, error) {
	return f.root, nil
}
