package slice

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dar-go/dar/pkg/errs"
)

// LocalStore implements Store over plain files named
// <basename>.<index>.<extension>, with the index zero-padded to at least
// MinDigits, matching the naming contract of §4.C.
type LocalStore struct {
	Dir       string
	Basename  string
	Extension string
	MinDigits int
}

// NewLocalStore builds a LocalStore rooted at dir.
func NewLocalStore(dir, basename, extension string, minDigits int) *LocalStore {
	if minDigits <= 0 {
		minDigits = 1
	}
	return &LocalStore{Dir: dir, Basename: basename, Extension: extension, MinDigits: minDigits}
}

func (s *LocalStore) Name() string { return fmt.Sprintf("local:%s", s.Dir) }

func (s *LocalStore) path(idx int) string {
	numFmt := fmt.Sprintf("%%0%dd", s.MinDigits)
	num := fmt.Sprintf(numFmt, idx)
	fname := fmt.Sprintf("%s.%s.%s", s.Basename, num, s.Extension)
	return filepath.Join(s.Dir, fname)
}

func (s *LocalStore) Exists(idx int) bool {
	_, err := os.Stat(s.path(idx))
	return err == nil
}

func (s *LocalStore) ReadSlice(idx int) (io.ReadCloser, error) {
	f, err := os.Open(s.path(idx))
	if err != nil {
		return nil, errs.New(errs.KindHardware, "slice.LocalStore.ReadSlice", err)
	}
	return f, nil
}

func (s *LocalStore) WriteSlice(idx int, content []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errs.New(errs.KindHardware, "slice.LocalStore.WriteSlice", err)
	}
	f, err := os.OpenFile(s.path(idx), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindHardware, "slice.LocalStore.WriteSlice", err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return errs.New(errs.KindHardware, "slice.LocalStore.WriteSlice", err)
	}
	return nil
}
