// Package output renders CLI results for people or for scripts.
package output

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}

// ConfigureColor turns styling off when asked to or when stdout is not a
// terminal.
func ConfigureColor(noColor bool) {
	fd := os.Stdout.Fd()
	if noColor || !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) {
		pterm.DisableStyling()
		return
	}
	pterm.EnableStyling()
}
