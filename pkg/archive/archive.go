// Package archive is the engine facade (§4.I): Create/Open/Extract/
// Test/Diff, composing pkg/slice, pkg/cipher, pkg/compress,
// pkg/header, and pkg/catalog into the operations a caller actually
// wants, the way beam-cloud-clip's pkg/clip.Archiver composes its own
// lower layers into Create/Extract/Mount.
package archive

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dar-go/dar/internal/fsscan"
	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/catalog"
	"github.com/dar-go/dar/pkg/cipher"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/header"
	"github.com/dar-go/dar/pkg/slice"
	"github.com/dar-go/dar/pkg/stream"
)

// dataCRCWidth is the width of the per-file data CRC stamp (§4.F: a
// wider crc64-backed stamp for per-file data, distinct from the
// 2-byte fold used for catalogue framing).
const dataCRCWidth = 8

// Options configures every operation in this package.
type Options struct {
	Store       slice.Store
	SliceSize   int
	Compression compress.Algorithm
	Cipher      cipher.BlockCipher // nil = no encryption
	CommandLine string
	EARootSaved bool
	EAUserSaved bool

	// Reference, when non-nil, is the prior catalogue Create diffs
	// against for an incremental archive (§3 "diff against a
	// reference catalogue").
	Reference *catalog.Catalog
	Diff      catalog.DiffOptions

	// Filter restricts which paths Create/Extract/Diff touch. A nil
	// Filter covers everything.
	Filter Mask

	HeaderConfirm header.ConfirmFunc

	// NoSpaceRetry, when set, is consulted by Create whenever a slice
	// write hits ENOSPC (§7 "no-space prompt"); see
	// pkg/slice.Set.SetNoSpaceRetry.
	NoSpaceRetry func() (bool, error)
}

func (o Options) filter() Mask {
	if o.Filter == nil {
		return AlwaysMask{}
	}
	return o.Filter
}

func (o Options) flags() byte {
	var f byte
	if o.EARootSaved {
		f |= header.FlagEARootSaved
	}
	if o.EAUserSaved {
		f |= header.FlagEAUserSaved
	}
	if o.Cipher != nil {
		f |= header.FlagScrambled
	}
	return f
}

// Archive is an opened archive: its header and in-memory catalogue,
// plus the raw channel the file-data pipeline is reopened over.
type Archive struct {
	Header  header.Header
	Catalog *catalog.Catalog
	opts    Options
	raw     stream.Channel // the slice.Set itself
	// dataStart is raw's absolute position immediately after the
	// header, where the per-file data pipeline begins. DataOffset on
	// every entry is a position within that single pipeline's clear
	// stream, not an absolute raw offset, so reading a file back
	// means seeking raw to dataStart, opening one fresh pipeline, and
	// reading forward in the same pre-order Create wrote in — never
	// seeking the pipeline itself (see forEachSavedFile). ReadAt takes
	// the other valid path: a freshly reopened pipeline's clear-zero
	// lines up with dataStart exactly the way the original write-side
	// pipeline's did, so Skip(DataOffset) on that fresh pipeline is
	// safe even though Skip on raw itself never is.
	dataStart *bignum.Int
	mu        sync.Mutex // serializes raw's shared position across concurrent random-access reads
}

// Close releases the underlying slice-set.
func (a *Archive) Close() error { return a.raw.Close() }

// dataPipeline builds the per-file transform stack positioned at the
// raw channel's current offset: compress(cipher(raw)) per §4.I
// "stream file data through (compressor over cipher over
// slice-set)". Callers open one pipeline and pass every file's bytes
// through it in catalogue order (see writeFileData and forEachSavedFile).
func dataPipeline(raw stream.Channel, opts Options, mode stream.Mode) (stream.Channel, error) {
	var under stream.Channel = raw
	if opts.Cipher != nil {
		if mode == stream.WriteOnly {
			under = cipher.NewWriteFrame(raw, opts.Cipher)
		} else {
			under = cipher.NewReadFrame(raw, opts.Cipher)
		}
	}
	codec, err := compress.New(opts.Compression)
	if err != nil {
		return nil, err
	}
	if mode == stream.WriteOnly {
		return compress.NewWriteFrame(under, codec, 0), nil
	}
	return compress.NewReadFrame(under, codec), nil
}

// Create scans root, diffs it against opts.Reference when present,
// writes a fresh archive to opts.Store, and returns the resulting
// catalogue's statistics (§4.I "Create").
func Create(opts Options, root string) (catalog.Statistics, error) {
	scanned, err := fsscan.Scan(root)
	if err != nil {
		return catalog.Statistics{}, err
	}

	filter := opts.filter()
	if err := applyFilter(scanned, filter); err != nil {
		return catalog.Statistics{}, err
	}

	catalog.CollapseHardlinks(scanned)
	if opts.Reference != nil {
		if err := catalog.CompareAgainstReference(scanned, opts.Reference, opts.Diff, time.Now().Unix()); err != nil {
			return catalog.Statistics{}, err
		}
	}

	set := slice.OpenWrite(opts.Store, opts.SliceSize)
	if opts.NoSpaceRetry != nil {
		set.SetNoSpaceRetry(opts.NoSpaceRetry)
	}

	h := header.NewHeader(opts.Compression, opts.CommandLine, opts.flags())
	if err := header.Write(set, h); err != nil {
		set.Close()
		return catalog.Statistics{}, err
	}

	if err := writeFileData(set, scanned, root, opts); err != nil {
		set.Close()
		return catalog.Statistics{}, err
	}

	catalogStart := set.Position()
	if err := scanned.Dump(set); err != nil {
		set.Close()
		return catalog.Statistics{}, err
	}
	if err := header.WriteTerminator(set, catalogStart); err != nil {
		set.Close()
		return catalog.Statistics{}, err
	}
	if err := set.EndOfFile(); err != nil {
		set.Close()
		return catalog.Statistics{}, err
	}
	if err := set.Close(); err != nil {
		return catalog.Statistics{}, err
	}

	return scanned.Stats, nil
}

// writeFileData streams every Saved-status file's bytes (regular
// files, and the first mirage of each hard-link group), read from root
// joined with each catalogue path, through one shared per-file
// pipeline in catalogue pre-order, recording
// DataOffset/DataCRC as it goes, then flushes the pipeline's final
// compressed segment. Reading the data back (forEachSavedFile) walks
// the same catalogue in the same order through a freshly opened
// pipeline, rather than seeking the pipeline to a remembered offset —
// see the dataStart field doc on Archive for why.
func writeFileData(raw stream.Channel, cat *catalog.Catalog, root string, opts Options) error {
	pipeline, err := dataPipeline(raw, opts, stream.WriteOnly)
	if err != nil {
		return err
	}

	written := map[*catalog.Star]bool{}
	walkErr := cat.Walk(func(fullPath string, e *catalog.Entry) error {
		switch e.Kind {
		case catalog.KindFile:
			if e.SavedStatus != catalog.Saved {
				return nil
			}
			return writeOneFile(pipeline, filepath.Join(root, fullPath), e)
		case catalog.KindHardlinkMirage:
			if e.Star == nil || e.Star.SavedStatus != catalog.Saved || written[e.Star] {
				return nil
			}
			written[e.Star] = true
			return writeOneStarFile(pipeline, filepath.Join(root, fullPath), e.Star)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return pipeline.EndOfFile()
}

func writeOneFile(pipeline stream.Channel, fullPath string, e *catalog.Entry) error {
	e.DataOffset = pipeline.Position().Clone()
	pipeline.ResetCRC(dataCRCWidth)

	f, err := os.Open(fullPath)
	if err != nil {
		return errs.New(errs.KindHardware, "archive.writeOneFile", err)
	}
	defer f.Close()

	if err := copyFileInto(pipeline, f); err != nil {
		return err
	}
	e.DataCRC = pipeline.GetCRC()
	return nil
}

func writeOneStarFile(pipeline stream.Channel, fullPath string, star *catalog.Star) error {
	star.DataOffset = pipeline.Position().Clone()
	pipeline.ResetCRC(dataCRCWidth)

	f, err := os.Open(fullPath)
	if err != nil {
		return errs.New(errs.KindHardware, "archive.writeOneStarFile", err)
	}
	defer f.Close()

	if err := copyFileInto(pipeline, f); err != nil {
		return err
	}
	star.DataCRC = pipeline.GetCRC()
	return nil
}

func copyFileInto(pipeline stream.Channel, f *os.File) error {
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := pipeline.Write(buf[:n]); werr != nil {
				return errs.New(errs.KindHardware, "archive.copyFileInto", werr)
			}
		}
		if rerr != nil {
			return nil
		}
	}
}

// applyFilter marks every scanned entry the filter excludes as
// Ignored/IgnoredDir without removing it from the tree (§4.I
// "Filters"). Dump skips both kinds, an ignored directory together
// with its whole subtree, so excluded paths are not recorded in the
// archive.
func applyFilter(cat *catalog.Catalog, filter Mask) error {
	return cat.Walk(func(fullPath string, e *catalog.Entry) error {
		if fullPath == "/" || filter.Covers(fullPath) {
			return nil
		}
		if e.IsDir() {
			e.Kind = catalog.KindIgnoredDir
		} else {
			e.Kind = catalog.KindIgnored
		}
		return nil
	})
}

// Open reads an existing archive's header and catalogue (§4.I
// "Open"). Extract/Test reopen the per-file data pipeline themselves
// via forEachSavedFile; Open leaves the raw channel wherever
// catalogue parsing stopped.
func Open(opts Options) (*Archive, error) {
	set, err := slice.OpenRead(opts.Store)
	if err != nil {
		return nil, err
	}

	h, err := header.Read(set, opts.HeaderConfirm)
	if err != nil {
		set.Close()
		return nil, err
	}
	opts.Compression = h.Compression
	dataStart := set.Position().Clone()

	catalogStart, err := header.LocateTerminator(set)
	if err != nil {
		set.Close()
		return nil, err
	}
	if err := set.Skip(catalogStart); err != nil {
		set.Close()
		return nil, err
	}
	cat, err := catalog.Read(set)
	if err != nil {
		set.Close()
		return nil, err
	}

	return &Archive{Header: h, Catalog: cat, opts: opts, raw: set, dataStart: dataStart}, nil
}

// openDataPipeline seeks raw back to the start of the file-data region
// and opens one fresh read pipeline over it, positioned at clear
// offset 0 — the pipeline's own position then lines up with every
// entry's DataOffset as recorded during Create, letting
// forEachSavedFile below read sequentially in step with it.
func (a *Archive) openDataPipeline() (stream.Channel, error) {
	if err := a.raw.Skip(a.dataStart); err != nil {
		return nil, err
	}
	return dataPipeline(a.raw, a.opts, stream.ReadOnly)
}

// forEachSavedFile walks Catalog in the same pre-order Create wrote
// in, handing fn a single shared pipeline already positioned at the
// start of each Saved regular file's bytes, and at the start of the
// first mirage's bytes for each hard-link group (later mirages of the
// same group are skipped entirely; callers hard-link the destination
// path instead of reading again). fn must consume exactly the entry's
// bytes (fn receives the entry's size to know where to stop) before
// returning, since the next call continues reading the same pipeline.
func (a *Archive) forEachSavedFile(fn func(fullPath string, e *catalog.Entry, size uint64, r stream.Channel) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	pipeline, err := a.openDataPipeline()
	if err != nil {
		return err
	}
	seen := map[*catalog.Star]bool{}
	return a.Catalog.Walk(func(fullPath string, e *catalog.Entry) error {
		switch e.Kind {
		case catalog.KindFile:
			if e.SavedStatus != catalog.Saved {
				return nil
			}
			if err := checkOffset(pipeline, e.DataOffset); err != nil {
				return err
			}
			return fn(fullPath, e, e.Attr.Size, pipeline)
		case catalog.KindHardlinkMirage:
			if e.Star == nil || e.Star.SavedStatus != catalog.Saved || seen[e.Star] {
				return nil
			}
			seen[e.Star] = true
			if err := checkOffset(pipeline, e.Star.DataOffset); err != nil {
				return err
			}
			return fn(fullPath, e, e.Star.Attr.Size, pipeline)
		}
		return nil
	})
}

// checkOffset guards against the pipeline's own position drifting
// from what Create recorded — it would mean a reader bug upstream
// (consuming the wrong number of bytes for a prior file), not a
// corrupt archive, so it is reported as KindBug.
func checkOffset(pipeline stream.Channel, expected *bignum.Int) error {
	if expected == nil {
		return nil
	}
	if pipeline.Position().Cmp(expected) != 0 {
		return errs.New(errs.KindBug, "archive.checkOffset", errOffsetDrift)
	}
	return nil
}

type archiveErr string

func (e archiveErr) Error() string { return string(e) }

const (
	errOffsetDrift       = archiveErr("file data pipeline position does not match recorded offset")
	errTruncatedFileData = archiveErr("archive ended before a saved file's declared size was read")
)
