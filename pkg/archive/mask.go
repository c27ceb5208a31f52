package archive

import (
	"path"
	"regexp"
)

// Mask is a path filter leaf or combinator (§4.I "Filters are mask
// trees"), grounded on libdar's mask/mask_list/mask_list hierarchy
// (original_source/mask_list.hpp): a mask answers one question,
// "is this path covered?", and combinators compose leaves the same
// declarative way ClipArchiverOptions composes its own filter knobs.
type Mask interface {
	Covers(fullPath string) bool
}

// GlobMask covers any path whose base name matches a shell glob
// pattern (path.Match semantics).
type GlobMask struct{ Pattern string }

func (m GlobMask) Covers(fullPath string) bool {
	ok, _ := path.Match(m.Pattern, path.Base(fullPath))
	return ok
}

// RegexMask covers any full path matching a regular expression.
type RegexMask struct{ Expr *regexp.Regexp }

func (m RegexMask) Covers(fullPath string) bool { return m.Expr.MatchString(fullPath) }

// ListMask covers exactly the paths present in an explicit set,
// grounded on libdar's mask_list (a mask that matches entries present
// in a given list file).
type ListMask struct{ Paths map[string]bool }

// NewListMask builds a ListMask from a slice of paths, as if read one
// per line from a list file (mask_list.hpp's constructor contract).
func NewListMask(paths []string) ListMask {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return ListMask{Paths: set}
}

func (m ListMask) Covers(fullPath string) bool { return m.Paths[fullPath] }

// And/Or/Not are the boolean combinators §4.I describes.
type And []Mask

func (a And) Covers(fullPath string) bool {
	for _, m := range a {
		if !m.Covers(fullPath) {
			return false
		}
	}
	return true
}

type Or []Mask

func (o Or) Covers(fullPath string) bool {
	for _, m := range o {
		if m.Covers(fullPath) {
			return true
		}
	}
	return false
}

type Not struct{ Mask Mask }

func (n Not) Covers(fullPath string) bool { return !n.Mask.Covers(fullPath) }

// AlwaysMask covers every path; the zero value of Options.Filter.
type AlwaysMask struct{}

func (AlwaysMask) Covers(string) bool { return true }
