package catalog

import (
	"path"

	"github.com/tidwall/btree"

	"github.com/dar-go/dar/pkg/errs"
)

// Catalog is the in-memory entry tree for one archive: a root directory
// Entry holding everything else, plus a full-path index for O(log n)
// lookup (§4.G "a fast-lookup index may shadow the ordered list" — here,
// btree.BTree keyed by path, the same structure beam-cloud-clip's
// ClipArchiveMetadata.Index uses over ClipNode).
type Catalog struct {
	Root  *Entry
	index *btree.BTree

	stars         map[uint64]*Star
	nextEtiquette uint64

	Stats Statistics
}

// Statistics tallies entry counts and byte totals, updated incrementally
// by Insert and by Read (§4.G "Statistics"); Dump leaves them untouched.
type Statistics struct {
	ByKind        map[Kind]int
	BySavedStatus map[SavedStatus]int
	TotalEntries  int
	TotalBytes    uint64
}

func newStatistics() Statistics {
	return Statistics{ByKind: map[Kind]int{}, BySavedStatus: map[SavedStatus]int{}}
}

func (s *Statistics) record(e *Entry) {
	s.ByKind[e.Kind]++
	s.TotalEntries++
	if e.Kind == KindFile {
		s.BySavedStatus[e.SavedStatus]++
		s.TotalBytes += e.Attr.Size
	}
}

// indexItem is what actually lives in the btree: a full path plus the
// Entry it resolves to.
type indexItem struct {
	path  string
	entry *Entry
}

func indexLess(a, b interface{}) bool {
	return a.(*indexItem).path < b.(*indexItem).path
}

// New returns an empty catalogue rooted at a synthetic "/" directory.
func New() *Catalog {
	root := &Entry{Name: "/", Kind: KindDir}
	c := &Catalog{
		Root:  root,
		index: btree.New(indexLess),
		stars: map[uint64]*Star{},
		Stats: newStatistics(),
	}
	c.index.Set(&indexItem{path: "/", entry: root})
	return c
}

// Insert adds e as a child of the directory at parentPath, enforcing the
// unique-name-within-a-directory invariant (§3).
func (c *Catalog) Insert(parentPath string, e *Entry) error {
	parent, ok := c.get(parentPath)
	if !ok || !parent.IsDir() {
		return errs.New(errs.KindBug, "catalog.Insert", errNoSuchDirectory)
	}
	for _, sibling := range parent.Children {
		if sibling.Name == e.Name {
			return errs.New(errs.KindRange, "catalog.Insert", errDuplicateName)
		}
	}
	parent.Children = append(parent.Children, e)
	full := path.Join(parentPath, e.Name)
	c.index.Set(&indexItem{path: full, entry: e})
	c.Stats.record(e)
	return nil
}

// Get resolves a full path to its Entry.
func (c *Catalog) Get(fullPath string) (*Entry, bool) { return c.get(fullPath) }

func (c *Catalog) get(fullPath string) (*Entry, bool) {
	item := c.index.Get(&indexItem{path: fullPath})
	if item == nil {
		return nil, false
	}
	return item.(*indexItem).entry, true
}

// ListDirectory returns dirPath's immediate children in insertion order.
// The ordered Children slice on the directory Entry is authoritative per
// §3; the btree index exists purely for O(log n) full-path lookup.
func (c *Catalog) ListDirectory(dirPath string) ([]*Entry, error) {
	d, ok := c.get(dirPath)
	if !ok {
		return nil, errs.New(errs.KindRange, "catalog.ListDirectory", errNoSuchDirectory)
	}
	if !d.IsDir() {
		return nil, errs.New(errs.KindRange, "catalog.ListDirectory", errNotADirectory)
	}
	return d.Children, nil
}

// Walk visits every entry in directory pre-order (the order Dump uses),
// calling fn with each entry's full path.
func (c *Catalog) Walk(fn func(fullPath string, e *Entry) error) error {
	return c.walk("/", c.Root, fn)
}

func (c *Catalog) walk(fullPath string, e *Entry, fn func(string, *Entry) error) error {
	if err := fn(fullPath, e); err != nil {
		return err
	}
	for _, child := range e.Children {
		childPath := path.Join(fullPath, child.Name)
		if err := c.walk(childPath, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// NewEtiquette allocates the next hard-link etiquette id and registers a
// fresh Star for it.
func (c *Catalog) NewEtiquette(star *Star) uint64 {
	c.nextEtiquette++
	star.Etiquette = c.nextEtiquette
	c.stars[c.nextEtiquette] = star
	return c.nextEtiquette
}

// Star resolves an etiquette id to its shared inode, or reports it as
// unknown (§4.G "a mirage id referenced before it is introduced" is a
// read-time error the caller constructs from this).
func (c *Catalog) Star(etiquette uint64) (*Star, bool) {
	s, ok := c.stars[etiquette]
	return s, ok
}

type catalogErr string

func (e catalogErr) Error() string { return string(e) }

const (
	errNoSuchDirectory = catalogErr("no such directory in catalogue")
	errNotADirectory   = catalogErr("path is not a directory")
	errDuplicateName   = catalogErr("duplicate child name within directory")
)
