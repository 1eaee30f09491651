package rawmode

import (
	"os"

	"golang.org/x/term"
)

// Winsize represents terminal window dimensions in a platform-agnostic way
type Winsize struct {
	Row uint16
	Col uint16
}

// GetWindowSize returns the size of the terminal attached to stdout.
func GetWindowSize() (*Winsize, error) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return nil, err
	}
	return &Winsize{Row: uint16(rows), Col: uint16(cols)}, nil
}
