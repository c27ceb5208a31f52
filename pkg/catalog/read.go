package catalog

import (
	"bytes"
	"fmt"
	"path"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/compress"
	"github.com/dar-go/dar/pkg/crc"
	"github.com/dar-go/dar/pkg/errs"
	"github.com/dar-go/dar/pkg/stream"
)

// Read reconstructs a Catalog previously written by Dump (§4.G
// "Read-back"). It accepts three hard-link wire framings: the two this
// package writes ("mirage-with-inode", "mirage-alone") and a read-only
// legacy compatibility framing where the star is a standalone,
// unnamed entry preceding the mirages that reference it by etiquette
// ("legacy-file-with-etiquette") — see the Open Question note in
// DESIGN.md.
func Read(ch stream.Channel) (*Catalog, error) {
	length, err := bignum.Read(channelReader{ch})
	if err != nil {
		return nil, err
	}
	lv, ok := length.Uint64()
	if !ok {
		return nil, errs.New(errs.KindFeature, "catalog.Read", fmt.Errorf("catalogue length exceeds addressable range"))
	}
	payload, err := readExact(ch, lv)
	if err != nil {
		return nil, err
	}
	wantSum, err := readExact(ch, CRCWidth)
	if err != nil {
		return nil, err
	}
	fold := crc.NewFold(CRCWidth)
	fold.Update(payload)
	if !crc.Equal(fold, storedStamp{width: CRCWidth, sum: wantSum}) {
		return nil, errs.New(errs.KindData, "catalog.Read", fmt.Errorf("catalogue CRC mismatch"))
	}

	c := New()
	r := bytes.NewReader(payload)
	if err := readChildren(c, c.Root, "/", r, true); err != nil {
		return nil, err
	}
	return c, nil
}

func readChildren(c *Catalog, parent *Entry, parentPath string, r *bytes.Reader, isRoot bool) error {
	for {
		peek, err := r.ReadByte()
		if err != nil {
			if isRoot {
				return nil
			}
			return errs.New(errs.KindData, "catalog.readChildren", fmt.Errorf("truncated catalogue: missing EOD"))
		}
		if peek == byte(KindEOD) {
			if isRoot {
				return errs.New(errs.KindData, "catalog.readChildren", fmt.Errorf("unexpected EOD at catalogue root"))
			}
			return nil
		}
		if err := r.UnreadByte(); err != nil {
			return errs.New(errs.KindBug, "catalog.readChildren", err)
		}

		name, err := readString(r)
		if err != nil {
			return err
		}
		sigByte, err := readByte(r)
		if err != nil {
			return err
		}
		kind := Kind(sigByte)
		if !knownKinds[kind] {
			return errs.New(errs.KindData, "catalog.readChildren", fmt.Errorf("unknown catalogue entry signature %#x", sigByte))
		}

		switch kind {
		case KindDir:
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			child := &Entry{Name: name, Kind: KindDir, Attr: attr}
			c.attach(parent, parentPath, child)
			if err := readChildren(c, child, path.Join(parentPath, name), r, false); err != nil {
				return err
			}

		case KindFile:
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			offset, sum, status, algo, err := readFileData(r)
			if err != nil {
				return err
			}
			fp, err := readUint64(r)
			if err != nil {
				return err
			}
			child := &Entry{
				Name: name, Kind: KindFile, Attr: attr,
				DataOffset: offset, DataCRC: sum, SavedStatus: status,
				CompressionAlgo: algo, EAFingerprint: fp,
			}
			if status == Delta {
				sig, err := readString(r)
				if err != nil {
					return err
				}
				child.DeltaSignature = []byte(sig)
			}
			c.attach(parent, parentPath, child)

		case KindSymlink:
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			target, err := readString(r)
			if err != nil {
				return err
			}
			c.attach(parent, parentPath, &Entry{Name: name, Kind: KindSymlink, Attr: attr, Target: target})

		case KindCharDevice, KindBlockDevice:
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			major, err := readUint32(r)
			if err != nil {
				return err
			}
			minor, err := readUint32(r)
			if err != nil {
				return err
			}
			c.attach(parent, parentPath, &Entry{Name: name, Kind: kind, Attr: attr, Major: major, Minor: minor})

		case KindNamedPipe, KindSocket:
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			c.attach(parent, parentPath, &Entry{Name: name, Kind: kind, Attr: attr})

		case KindHardlinkMirage:
			hasInode, err := readByte(r)
			if err != nil {
				return err
			}
			if hasInode == 1 {
				attr, err := readAttr(r)
				if err != nil {
					return err
				}
				offset, sum, status, algo, err := readFileData(r)
				if err != nil {
					return err
				}
				etiquette, err := readUint64(r)
				if err != nil {
					return err
				}
				star := &Star{Etiquette: etiquette, Attr: attr, DataOffset: offset, DataCRC: sum, SavedStatus: status, CompressionAlgo: algo, RefCount: 1}
				c.registerStar(star)
				c.attach(parent, parentPath, &Entry{Name: name, Kind: KindHardlinkMirage, Etiquette: etiquette, Star: star})
			} else {
				etiquette, err := readUint64(r)
				if err != nil {
					return err
				}
				star, ok := c.Star(etiquette)
				if !ok {
					return errs.New(errs.KindData, "catalog.readChildren", fmt.Errorf("mirage etiquette %d referenced before it was introduced", etiquette))
				}
				star.RefCount++
				c.attach(parent, parentPath, &Entry{Name: name, Kind: KindHardlinkMirage, Etiquette: etiquette, Star: star})
			}

		case KindHardlinkStar:
			// Legacy standalone star: not a named tree child, just a
			// side-channel inode registration for the mirages after it.
			attr, err := readAttr(r)
			if err != nil {
				return err
			}
			offset, sum, status, algo, err := readFileData(r)
			if err != nil {
				return err
			}
			etiquette, err := readUint64(r)
			if err != nil {
				return err
			}
			c.registerStar(&Star{Etiquette: etiquette, Attr: attr, DataOffset: offset, DataCRC: sum, SavedStatus: status, CompressionAlgo: algo})

		case KindDeleted:
			deletedAt, err := readUint64(r)
			if err != nil {
				return err
			}
			c.attach(parent, parentPath, &Entry{Name: name, Kind: KindDeleted, DeletedAt: int64(deletedAt)})

		default:
			return errs.New(errs.KindData, "catalog.readChildren", fmt.Errorf("entry kind %s cannot appear as a tree child", kind))
		}
	}
}

func readFileData(r *bytes.Reader) (*bignum.Int, crc.Stamp, SavedStatus, compress.Algorithm, error) {
	offset, err := bignum.Read(r)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	width, err := readByte(r)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	var sum crc.Stamp
	if width > 0 {
		raw, err := readBytes(r, int(width))
		if err != nil {
			return nil, nil, 0, 0, err
		}
		sum = storedStamp{width: int(width), sum: raw}
	}
	statusByte, err := readByte(r)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	algoByte, err := readByte(r)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return offset, sum, SavedStatus(statusByte), compress.Algorithm(algoByte), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	b, err := readBytes(r, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// attach appends child to parent's ordered Children list and indexes it
// by full path, bypassing Insert's duplicate-name check (a well-formed
// archive cannot contain duplicates; Read treats one as corruption
// elsewhere, via the signature/EOD checks, rather than re-deriving the
// check here).
func (c *Catalog) attach(parent *Entry, parentPath string, child *Entry) {
	parent.Children = append(parent.Children, child)
	full := path.Join(parentPath, child.Name)
	c.index.Set(&indexItem{path: full, entry: child})
	c.Stats.record(child)
}

// registerStar records star under its own etiquette and advances
// nextEtiquette past it, so any later mutation of the read-back catalogue
// allocates fresh, non-colliding etiquette ids.
func (c *Catalog) registerStar(star *Star) {
	c.stars[star.Etiquette] = star
	if star.Etiquette > c.nextEtiquette {
		c.nextEtiquette = star.Etiquette
	}
}

// channelReader adapts a stream.Channel to io.Reader for bignum.Read,
// translating the Channel contract's zero-length/no-error EOF into
// io.EOF the way pkg/compress's identical adapter does.
type channelReader struct{ ch stream.Channel }

func (r channelReader) Read(p []byte) (int, error) {
	n, err := r.ch.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errReaderEOF
	}
	return n, nil
}

type catalogReadErr string

func (e catalogReadErr) Error() string { return string(e) }

const errReaderEOF = catalogReadErr("EOF")
