// Package uio implements the pause-and-retry protocol of §7: the three
// places a running archive operation stops to ask a human a yes/no
// question — no-space-left, an unknown archive edition, and an
// overwrite collision — rather than failing outright.
package uio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dar-go/dar/pkg/header"
)

// Prompter asks a yes/no question on an interactive terminal and
// reports the answer, the way every pause-and-retry point in §7 does.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New wraps in/out for prompting. cmd/dar wires this to os.Stdin/os.Stderr.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and reads a line, treating "y"/"yes" (any case)
// as affirmative and anything else as negative.
func (p *Prompter) Ask(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N] ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// NoSpaceRetry adapts Ask to pkg/slice.Set.SetNoSpaceRetry's signature
// for the "no space left; free some space and continue?" prompt.
func (p *Prompter) NoSpaceRetry() (bool, error) {
	return p.Ask("no space left; free some space and continue?")
}

// ConfirmEdition implements pkg/header.ConfirmFunc for the
// unknown-edition prompt.
func (p *Prompter) ConfirmEdition(candidate header.Edition) (bool, error) {
	return p.Ask(fmt.Sprintf("archive edition %q is newer than this build understands; read anyway?", candidate))
}

// ConfirmOverwrite adapts Ask to pkg/archive.ExtractOptions.Confirm for
// the overwrite prompt.
func (p *Prompter) ConfirmOverwrite(fullPath string) (bool, error) {
	return p.Ask(fmt.Sprintf("%s already exists; overwrite?", fullPath))
}
