// Package clihelp is the scaffolding shared by cmd/dar and
// cmd/dar_manager: the same few things every libdar front-end gets
// from dar_suite.cpp/.hpp — a version banner, a usage-printer, and one
// place that turns a returned error into a process exit code.
package clihelp

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dar-go/dar/pkg/errs"
)

// Fail logs err under msg and returns the exit code its Kind maps to
// (§6). Errors that never went through pkg/errs map to KindBug's code.
func Fail(msg string, err error) int {
	log.Error().Err(err).Msg(msg)
	if e, ok := err.(*errs.Error); ok {
		return e.Kind.ExitCode()
	}
	return errs.KindBug.ExitCode()
}

// Usage writes banner to stderr, the way every teacher cmd/* prints
// its usage text on -h or on a malformed invocation.
func Usage(banner string) {
	fmt.Fprint(os.Stderr, banner)
}

// PrintVersion writes "name version" to w for a -V/--version flag.
func PrintVersion(w io.Writer, name, version string) {
	fmt.Fprintf(w, "%s %s\n", name, version)
}
