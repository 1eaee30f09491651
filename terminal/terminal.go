package terminal

import (
	"bufio"
	"io"
	"os"
)

// Special keys
const (
	KeyNoSpl     = iota
	KeyArrowLeft = iota + 999
	KeyArrowRight
	KeyArrowUp
	KeyArrowDown
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
)

// escape sequences after the leading ESC
var specialKeys = map[[4]byte]int{
	{91, 65, 0, 0}:   KeyArrowUp,    // \x1b[A
	{91, 66, 0, 0}:   KeyArrowDown,  // \x1b[B
	{91, 68, 0, 0}:   KeyArrowLeft,  // \x1b[D
	{91, 67, 0, 0}:   KeyArrowRight, // \x1b[C
	{79, 65, 0, 0}:   KeyArrowUp,    // \x1bOA (application cursor mode)
	{79, 66, 0, 0}:   KeyArrowDown,
	{91, 53, 126, 0}: KeyPageUp,   // \x1b[5~
	{91, 54, 126, 0}: KeyPageDown, // \x1b[6~
	{91, 72, 0, 0}:   KeyHome,
	{91, 70, 0, 0}:   KeyEnd,
	{91, 49, 126, 0}: KeyHome, // \x1b[1~
	{91, 52, 126, 0}: KeyEnd,  // \x1b[4~
	{91, 51, 126, 0}: KeyDelete,
}

// Key represents the key entered by the user
type Key struct {
	Regular rune
	Special int
}

// Reader decodes keys from a raw-mode byte stream.
type Reader struct {
	bufr *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{bufr: bufio.NewReader(r)}
}

var stdin = NewReader(os.Stdin)

// ReadKey reads a key from stdin, which should already be in raw mode.
func ReadKey() (Key, error) {
	return stdin.ReadKey()
}

// ReadKey reads one key, processing VT100 escape sequences.
func (r *Reader) ReadKey() (Key, error) {
	c, _, err := r.bufr.ReadRune()
	if err != nil {
		return Key{}, err
	}

	//ascii escape is decimal 27
	if c != 27 {
		return Key{c, KeyNoSpl}, nil
	}

	// nothing has been buffered, probably plain escape
	if r.bufr.Buffered() == 0 {
		return Key{27, KeyNoSpl}, nil
	}

	stack := [4]byte{}
	for j := 0; j < 4 && r.bufr.Buffered() > 0; j++ {
		b, err := r.bufr.ReadByte()
		if err != nil {
			return Key{}, err
		}
		stack[j] = b
		if key, found := specialKeys[stack]; found {
			return Key{0, key}, nil
		}
	}
	// unrecognized sequence; report a bare escape
	return Key{27, KeyNoSpl}, nil
}
