package preview

import (
	"errors"
	"fmt"

	"github.com/mattn/go-runewidth"

	"github.com/slzatz/termpreview/fetch"
	"github.com/slzatz/termpreview/render"
)

type State int

const (
	// Pending means not rendered yet; either queued, loading or never
	// submitted. The caller should Submit and redraw later.
	Pending State = iota
	Ready
	Failed
	// Unavailable means previews are off for the session.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Unavailable:
		return "unavailable"
	default:
		return "pending"
	}
}

// Result is what the redraw loop sees for one request.
type Result struct {
	State State
	Text  string
	Err   error
}

// Peek reports the current state of req without doing any I/O. It is safe
// to call from the redraw loop.
func (c *Cache) Peek(req Request) Result {
	if c.unavailable.Load() {
		return Result{State: Unavailable, Err: render.ErrUnavailable}
	}
	key := req.Key()
	if item := c.memo.Get(key); item != nil {
		return Result{State: Ready, Text: item.Value()}
	}
	if c.inFlight(key) > 0 {
		return Result{State: Pending}
	}
	if item := c.failures.Get(key); item != nil {
		return Result{State: Failed, Err: item.Value()}
	}
	return Result{State: Pending}
}

const failPrefix = "⚠️ image failed to load: "

// Message turns an error from GetOrRender into the inline line shown in
// place of the image.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, render.ErrUnavailable) {
		return "image previews unavailable"
	}

	var fe *fetch.Error
	var ie *render.InvocationError
	switch {
	case errors.As(err, &fe) && fe.Timeout:
		return failPrefix + "download timed out"
	case errors.As(err, &fe) && fe.StatusCode != 0:
		return fmt.Sprintf("%sHTTP %d", failPrefix, fe.StatusCode)
	case errors.As(err, &ie) && ie.TimedOut:
		return failPrefix + "render timed out"
	case errors.As(err, &ie) && ie.Stderr != "":
		return failPrefix + firstLine(ie.Stderr)
	}
	return failPrefix + firstLine(err.Error())
}

// Placeholder is the text to draw for res, cut to width cells. Unavailable
// previews draw nothing.
func Placeholder(res Result, width int) string {
	var s string
	switch res.State {
	case Ready:
		return res.Text
	case Failed:
		s = Message(res.Err)
	case Unavailable:
		return ""
	default:
		s = "loading image…"
	}
	if width > 0 {
		s = runewidth.Truncate(s, width, "…")
	}
	return s
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
