// Package rawmode switches the controlling terminal in and out of raw mode.
package rawmode

import (
	"os"

	"golang.org/x/term"
)

// State is the terminal configuration to restore on exit.
type State = term.State

// Enable puts stdin in raw mode and returns the previous state.
func Enable() (*State, error) {
	return term.MakeRaw(int(os.Stdin.Fd()))
}

// Restore undoes Enable. A nil state is a no-op.
func Restore(st *State) error {
	if st == nil {
		return nil
	}
	return term.Restore(int(os.Stdin.Fd()), st)
}

// IsTerminal reports whether both stdin and stdout are terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
