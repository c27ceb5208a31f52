package dardb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/dar-go/dar/pkg/bignum"
	"github.com/dar-go/dar/pkg/errs"
)

// Encode serializes d into the on-disk representation described by §6
// "database file format": fileHeader's two bytes, then a gzip stream
// wrapping the bignum-framed slot list, dar path, extra options and
// file index.
func (d *Database) Encode() ([]byte, error) {
	var inner bytes.Buffer
	if err := bignum.FromUint64(uint64(d.slotCount())).Dump(&inner); err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
	}
	for _, s := range d.Slots {
		writeString(&inner, s.Path)
		writeString(&inner, s.Basename)
	}
	writeString(&inner, d.DarPath)
	if err := bignum.FromUint64(uint64(len(d.ExtraOptions))).Dump(&inner); err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
	}
	for _, opt := range d.ExtraOptions {
		writeString(&inner, opt)
	}
	if err := bignum.FromUint64(uint64(len(d.FileIndex))).Dump(&inner); err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
	}
	for path, versions := range d.FileIndex {
		writeString(&inner, path)
		if err := bignum.FromUint64(uint64(len(versions))).Dump(&inner); err != nil {
			return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
		}
		for _, slotNum := range versions {
			if err := bignum.FromUint64(uint64(slotNum)).Dump(&inner); err != nil {
				return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
			}
		}
	}

	var out bytes.Buffer
	hdr := fileHeader{version: databaseVersion, options: currentOptions}.bytes()
	out.Write(hdr[:])
	gz := gzip.NewWriter(&out)
	if _, err := gz.Write(inner.Bytes()); err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
	}
	if err := gz.Close(); err != nil {
		return nil, errs.New(errs.KindHardware, "dardb.Encode", err)
	}
	return out.Bytes(), nil
}

// Decode parses the bytes Encode produces, rejecting any version it
// doesn't recognize (§6 "database_version(1)").
func Decode(raw []byte) (*Database, error) {
	_, body, err := readFileHeader(raw)
	if err != nil {
		kind := errs.KindFeature
		if he, ok := err.(*headerErr); ok && he.truncated {
			kind = errs.KindData
		}
		return nil, errs.New(kind, "dardb.Decode", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.KindData, "dardb.Decode", err)
	}
	defer gz.Close()

	d := New()

	slotCount, err := readSize(gz)
	if err != nil {
		return nil, err
	}
	if slotCount > 0 {
		d.Slots = make([]Slot, 0, slotCount)
	}
	for i := 0; i < slotCount; i++ {
		p, err := readString(gz)
		if err != nil {
			return nil, err
		}
		b, err := readString(gz)
		if err != nil {
			return nil, err
		}
		d.Slots = append(d.Slots, Slot{ID: uuid.New(), Path: p, Basename: b})
	}

	d.DarPath, err = readString(gz)
	if err != nil {
		return nil, err
	}
	optCount, err := readSize(gz)
	if err != nil {
		return nil, err
	}
	for i := 0; i < optCount; i++ {
		opt, err := readString(gz)
		if err != nil {
			return nil, err
		}
		d.ExtraOptions = append(d.ExtraOptions, opt)
	}

	pathCount, err := readSize(gz)
	if err != nil {
		return nil, err
	}
	for i := 0; i < pathCount; i++ {
		p, err := readString(gz)
		if err != nil {
			return nil, err
		}
		vn, err := readSize(gz)
		if err != nil {
			return nil, err
		}
		versions := make([]int, 0, vn)
		for j := 0; j < vn; j++ {
			sv, err := readSize(gz)
			if err != nil {
				return nil, err
			}
			versions = append(versions, sv)
		}
		d.FileIndex[p] = versions
	}

	return d, nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = bignum.FromUint64(uint64(len(s))).Dump(buf)
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	n, err := readSize(r)
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", errs.New(errs.KindData, "dardb.readString", fmt.Errorf("truncated string: %w", err))
	}
	return string(out), nil
}

func readSize(r io.Reader) (int, error) {
	n, err := bignum.Read(r)
	if err != nil {
		return 0, errs.New(errs.KindData, "dardb.readSize", err)
	}
	nv, ok := n.Uint64()
	if !ok {
		return 0, errs.New(errs.KindFeature, "dardb.readSize", fmt.Errorf("size exceeds addressable range"))
	}
	return int(nv), nil
}
