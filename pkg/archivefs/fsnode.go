package archivefs

import (
	"context"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dar-go/dar/pkg/catalog"
)

// FSNode is one mounted catalogue entry. Unlike clipfs's FSNode, it
// carries no lookup cache of its own: pkg/catalog.Catalog's btree index
// already gives Lookup O(log n) resolution, so there's nothing a second
// cache would save.
type FSNode struct {
	fs.Inode
	fsys  *FileSystem
	path  string
	entry *catalog.Entry
}

// attrOf resolves the metadata a node should report: a hard-link
// mirage's own Attr carries only its inode number, so its real
// metadata lives on the shared Star instead (§3 "hard-link
// preservation").
func attrOf(e *catalog.Entry) fuse.Attr {
	if e.Kind == catalog.KindHardlinkMirage && e.Star != nil {
		return e.Star.Attr
	}
	return e.Attr
}

func (n *FSNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	a := attrOf(n.entry)
	out.Ino = a.Ino
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.Atime = a.Atime
	out.Atimensec = a.Atimensec
	out.Mtime = a.Mtime
	out.Mtimensec = a.Mtimensec
	out.Ctime = a.Ctime
	out.Ctimensec = a.Ctimensec
	out.Mode = a.Mode
	out.Nlink = a.Nlink
	out.Owner = a.Owner
	return fs.OK
}

func (n *FSNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)
	child, ok := n.fsys.a.Catalog.Get(childPath)
	if !ok {
		return nil, syscall.ENOENT
	}
	switch child.Kind {
	case catalog.KindIgnored, catalog.KindIgnoredDir, catalog.KindDeleted:
		return nil, syscall.ENOENT
	}
	attr := attrOf(child)
	out.Attr = attr
	childNode := n.NewInode(ctx, &FSNode{fsys: n.fsys, path: childPath, entry: child}, fs.StableAttr{Mode: attr.Mode, Ino: attr.Ino})
	return childNode, fs.OK
}

func (n *FSNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	children, err := n.fsys.a.Catalog.ListDirectory(n.path)
	if err != nil {
		return nil, syscall.ENOENT
	}
	entries := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		switch c.Kind {
		case catalog.KindIgnored, catalog.KindIgnoredDir, catalog.KindDeleted:
			continue
		}
		attr := attrOf(c)
		entries = append(entries, fuse.DirEntry{Name: c.Name, Mode: attr.Mode, Ino: attr.Ino})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (n *FSNode) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (n *FSNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	size := int64(attrOf(n.entry).Size)
	if off >= size {
		return fuse.ReadResultData(nil), fs.OK
	}
	if remain := size - off; int64(len(dest)) > remain {
		dest = dest[:remain]
	}
	got, err := n.fsys.a.ReadAt(n.entry, dest, off)
	if err != nil {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:got]), fs.OK
}

func (n *FSNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if n.entry.Kind != catalog.KindSymlink {
		return nil, syscall.EINVAL
	}
	return []byte(n.entry.Target), fs.OK
}
