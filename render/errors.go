package render

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable means the renderer binary is missing or unusable. It is
// decided once per process; previews stay off for the rest of the session.
var ErrUnavailable = errors.New("image renderer unavailable")

// InvocationError is a render call that ran the tool but did not produce
// output: non-zero exit, timeout or an I/O failure around the process.
// It only affects the one image.
type InvocationError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
	Err      error
}

func (e *InvocationError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("renderer timed out after %s", e.Timeout)
	case e.ExitCode != 0 && e.Stderr != "":
		return fmt.Sprintf("renderer exited with status %d: %s", e.ExitCode, e.Stderr)
	case e.ExitCode != 0:
		return fmt.Sprintf("renderer exited with status %d", e.ExitCode)
	default:
		return fmt.Sprintf("renderer failed: %v", e.Err)
	}
}

func (e *InvocationError) Unwrap() error { return e.Err }
