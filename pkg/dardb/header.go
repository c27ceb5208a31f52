package dardb

import "fmt"

// fileHeader is the database's own small fixed header (original_source/
// database_header.hpp): one version byte and one options byte, written
// ahead of the gzip-compressed body every Encode produces.
type fileHeader struct {
	version byte
	options byte
}

// databaseVersion is the only wire version dar-go writes or reads.
const databaseVersion = 1

// currentOptions is reserved for future per-database feature bits; §6
// defines it as "currently always 0".
const currentOptions = 0

func (h fileHeader) bytes() [2]byte {
	return [2]byte{h.version, h.options}
}

type headerErr struct {
	truncated bool
	err       error
}

func (e *headerErr) Error() string { return e.err.Error() }

func readFileHeader(raw []byte) (fileHeader, []byte, error) {
	if len(raw) < 2 {
		return fileHeader{}, nil, &headerErr{truncated: true, err: fmt.Errorf("database file too short for its fixed header")}
	}
	h := fileHeader{version: raw[0], options: raw[1]}
	if h.version != databaseVersion {
		return fileHeader{}, nil, &headerErr{err: fmt.Errorf("unsupported database version %d", h.version)}
	}
	return h, raw[2:], nil
}
