// Package logging sets up the process-wide zerolog logger the same way
// every cmd/* main in beam-cloud-clip does: a ConsoleWriter on stderr
// for TTY-friendly output, with the option to drop to debug verbosity.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the package-level logger. verbose raises the global
// level to Debug; library code never calls this, only cmd/* mains.
func Init(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
