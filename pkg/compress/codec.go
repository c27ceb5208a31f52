// Package compress implements the compressor frame of §4.E: a
// stream.Channel that wraps another channel and transparently compresses
// or decompresses whole segments, so the catalogue and header layers above
// it never see a compression algorithm directly.
//
// Each write-side segment is compressed independently and stored as a
// bignum-length-prefixed block on the underlying channel (the "sync_write"
// boundary callers can force with SyncWrite). Framing this way, rather than
// relying on a given codec's own mid-stream flush support, lets every
// algorithm in the table — including ones with no flush primitive at all,
// like xz — offer the same resync behavior: a corrupt block only poisons
// itself, never the blocks after it.
package compress

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/dar-go/dar/pkg/errs"
)

// Algorithm tags one compressor implementation, matching the compression
// identifiers carried in the archive header (§6).
type Algorithm byte

const (
	None Algorithm = iota
	Gzip
	PGzip
	BZip2
	LZO
	XZ
	Zstd
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case PGzip:
		return "pgzip"
	case BZip2:
		return "bzip2"
	case LZO:
		return "lzo"
	case XZ:
		return "xz"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Codec compresses and decompresses one complete, self-contained block.
// Every implementation buffers the whole block rather than streaming it,
// the same uniform contract pkg/slice.Store uses for its backends: a
// segment is always small enough (bounded by the sync_write interval the
// caller chooses) to hold in memory.
type Codec interface {
	Algorithm() Algorithm
	Compress(clear []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// New returns the Codec for algo.
func New(algo Algorithm) (Codec, error) {
	switch algo {
	case None:
		return noneCodec{}, nil
	case Gzip:
		return gzipCodec{}, nil
	case PGzip:
		return pgzipCodec{}, nil
	case BZip2:
		return bzip2Codec{}, nil
	case LZO:
		return lzoCodec{}, nil
	case XZ:
		return xzCodec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	default:
		return nil, errs.New(errs.KindFeature, "compress.New", errUnknownAlgorithm)
	}
}

type compressErr string

func (e compressErr) Error() string { return string(e) }

const errUnknownAlgorithm = compressErr("unknown compression algorithm")

type noneCodec struct{}

func (noneCodec) Algorithm() Algorithm { return None }
func (noneCodec) Compress(clear []byte) ([]byte, error) {
	out := make([]byte, len(clear))
	copy(out, clear)
	return out, nil
}
func (noneCodec) Decompress(compressed []byte) ([]byte, error) {
	out := make([]byte, len(compressed))
	copy(out, compressed)
	return out, nil
}

type gzipCodec struct{}

func (gzipCodec) Algorithm() Algorithm { return Gzip }

func (gzipCodec) Compress(clear []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(clear); err != nil {
		return nil, errs.New(errs.KindData, "compress.gzip.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.KindData, "compress.gzip.Compress", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.gzip.Decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.gzip.Decompress", err)
	}
	return out, nil
}

// pgzipCodec is the parallel-gzip variant: same on-disk format as plain
// gzip, but the writer shards the block across goroutines, which matters
// once the sync_write interval is large.
type pgzipCodec struct{}

func (pgzipCodec) Algorithm() Algorithm { return PGzip }

func (pgzipCodec) Compress(clear []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	if _, err := w.Write(clear); err != nil {
		return nil, errs.New(errs.KindData, "compress.pgzip.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.KindData, "compress.pgzip.Compress", err)
	}
	return buf.Bytes(), nil
}

func (pgzipCodec) Decompress(compressed []byte) ([]byte, error) {
	r, err := pgzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.pgzip.Decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.pgzip.Decompress", err)
	}
	return out, nil
}

type bzip2Codec struct{}

func (bzip2Codec) Algorithm() Algorithm { return BZip2 }

func (bzip2Codec) Compress(clear []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.bzip2.Compress", err)
	}
	if _, err := w.Write(clear); err != nil {
		return nil, errs.New(errs.KindData, "compress.bzip2.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.KindData, "compress.bzip2.Compress", err)
	}
	return buf.Bytes(), nil
}

func (bzip2Codec) Decompress(compressed []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.bzip2.Decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.bzip2.Decompress", err)
	}
	return out, nil
}

// lzoCodec stands in for the historical "lzo" algorithm slot using lz4's
// frame format: both are block-oriented, low-latency codecs from the same
// family, and lz4 is the one the retrieval pack actually vendors.
type lzoCodec struct{}

func (lzoCodec) Algorithm() Algorithm { return LZO }

func (lzoCodec) Compress(clear []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(clear); err != nil {
		return nil, errs.New(errs.KindData, "compress.lzo.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.KindData, "compress.lzo.Compress", err)
	}
	return buf.Bytes(), nil
}

func (lzoCodec) Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.lzo.Decompress", err)
	}
	return out, nil
}

type xzCodec struct{}

func (xzCodec) Algorithm() Algorithm { return XZ }

func (xzCodec) Compress(clear []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.xz.Compress", err)
	}
	if _, err := w.Write(clear); err != nil {
		return nil, errs.New(errs.KindData, "compress.xz.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.KindData, "compress.xz.Compress", err)
	}
	return buf.Bytes(), nil
}

func (xzCodec) Decompress(compressed []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.xz.Decompress", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.xz.Decompress", err)
	}
	return out, nil
}

type zstdCodec struct{}

func (zstdCodec) Algorithm() Algorithm { return Zstd }

func (zstdCodec) Compress(clear []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.zstd.Compress", err)
	}
	defer w.Close()
	return w.EncodeAll(clear, nil), nil
}

func (zstdCodec) Decompress(compressed []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.zstd.Decompress", err)
	}
	defer r.Close()
	out, err := r.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errs.New(errs.KindData, "compress.zstd.Decompress", err)
	}
	return out, nil
}
