package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/slzatz/termpreview/preview"
	"github.com/slzatz/termpreview/rawmode"
	"github.com/slzatz/termpreview/terminal"
)

const redrawInterval = 200 * time.Millisecond

type peeker interface {
	Peek(req preview.Request) preview.Result
}

type submitter interface {
	Submit(reqs []preview.Request)
	Pending() int
}

// Viewer is the redraw loop: a scrolling list of image URLs, each drawn
// with its preview underneath. It never blocks on the pipeline; it submits
// what is on (or about to be on) screen and peeks for results.
type Viewer struct {
	urls          []string
	width, height int // preview size in cells
	cache         peeker
	sched         submitter
	out           io.Writer

	rows, cols int
	top        int  // index of the first visible url
	waiting    bool // something on screen is still loading
}

func NewViewer(app *AppContext, urls []string, out io.Writer) *Viewer {
	v := &Viewer{
		urls:   urls,
		width:  app.Config.Width,
		height: app.Config.Height,
		out:    out,
		rows:   24,
		cols:   80,
	}
	// leave the interfaces nil rather than holding nil pointers
	if app.Cache != nil {
		v.cache = app.Cache
		v.sched = app.Scheduler
	}
	return v
}

func (v *Viewer) itemLines() int {
	if v.cache == nil {
		return 1
	}
	return v.height + 2
}

// perScreen is how many items fit above the status line.
func (v *Viewer) perScreen() int {
	n := (v.rows - 1) / v.itemLines()
	if n < 1 {
		n = 1
	}
	return n
}

func (v *Viewer) resize(rows, cols int) {
	if rows > 0 {
		v.rows = rows
	}
	if cols > 0 {
		v.cols = cols
	}
	v.scroll(0)
}

func (v *Viewer) scroll(delta int) {
	v.top += delta
	if last := len(v.urls) - v.perScreen(); v.top > last {
		v.top = last
	}
	if v.top < 0 {
		v.top = 0
	}
}

func (v *Viewer) requests(from, n int) []preview.Request {
	if from < 0 {
		from = 0
	}
	to := from + n
	if to > len(v.urls) {
		to = len(v.urls)
	}
	var reqs []preview.Request
	for _, u := range v.urls[from:to] {
		reqs = append(reqs, preview.Request{URL: u, Width: v.width, Height: v.height})
	}
	return reqs
}

// processKey returns true when the viewer should quit.
func (v *Viewer) processKey(k int) bool {
	page := v.perScreen()
	switch k {
	case 'q', ctrlKey('c'):
		return true
	case 'j', terminal.KeyArrowDown:
		v.scroll(1)
	case 'k', terminal.KeyArrowUp:
		v.scroll(-1)
	case ' ', terminal.KeyPageDown, ctrlKey('f'):
		v.scroll(page)
	case terminal.KeyPageUp, ctrlKey('b'):
		v.scroll(-page)
	case 'g', terminal.KeyHome:
		v.top = 0
	case 'G', terminal.KeyEnd:
		v.scroll(len(v.urls))
	}
	return false
}

func ctrlKey(b byte) int {
	return int(b & 0x1f)
}

// frame builds one full screen. Visible items plus the next screenful are
// submitted for prefetch first.
func (v *Viewer) frame() string {
	page := v.perScreen()
	if v.sched != nil {
		v.sched.Submit(v.requests(v.top, 2*page))
	}

	var ab strings.Builder
	ab.WriteString("\x1b[?25l") //hides the cursor
	ab.WriteString("\x1b[2J")   //clears the screen
	v.waiting = false

	for i, req := range v.requests(v.top, page) {
		row := 1 + i*v.itemLines()
		fmt.Fprintf(&ab, "\x1b[%d;1H\x1b[1m%s\x1b[0m", row,
			runewidth.Truncate(fmt.Sprintf("%d. %s", v.top+i+1, req.URL), v.cols, "…"))
		if v.cache == nil {
			continue
		}

		res := v.peek(req)
		if res.State == preview.Pending {
			v.waiting = true
		}
		lines := strings.Split(preview.Placeholder(res, v.cols), "\n")
		if len(lines) > v.height {
			lines = lines[:v.height]
		}
		for j, line := range lines {
			fmt.Fprintf(&ab, "\x1b[%d;1H%s\x1b[0m", row+1+j, line)
		}
	}

	fmt.Fprintf(&ab, "\x1b[%d;1H\x1b[7m%s\x1b[0m", v.rows, v.status())
	return ab.String()
}

func (v *Viewer) status() string {
	last := v.top + v.perScreen()
	if last > len(v.urls) {
		last = len(v.urls)
	}
	s := fmt.Sprintf(" %d-%d of %d", v.top+1, last, len(v.urls))
	if v.sched != nil {
		if n := v.sched.Pending(); n > 0 {
			s += fmt.Sprintf("  loading %d", n)
		}
	} else {
		s += "  previews off"
	}
	s += "  | j/k scroll  PgUp/PgDn page  q quit"
	s = runewidth.Truncate(s, v.cols, "…")
	return runewidth.FillRight(s, v.cols)
}

func (v *Viewer) redraw() {
	io.WriteString(v.out, v.frame())
}

// Run draws until q is pressed or keys is closed. It redraws on every key,
// on resize, and on a short tick while anything visible is loading.
func (v *Viewer) Run(keys <-chan int, resize <-chan rawmode.Winsize) {
	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	v.redraw()
	for {
		select {
		case k, ok := <-keys:
			if !ok || v.processKey(k) {
				return
			}
			v.redraw()
		case ws := <-resize:
			v.resize(int(ws.Row), int(ws.Col))
			v.redraw()
		case <-ticker.C:
			if v.waiting {
				v.redraw()
			}
		}
	}
}

// PrintAll is the non-interactive mode: prefetch everything, wait until
// nothing is pending or ctx is done, then print each url and its preview.
func (v *Viewer) PrintAll(ctx context.Context, w io.Writer) {
	all := v.requests(0, len(v.urls))
	if v.cache != nil {
		ticker := time.NewTicker(redrawInterval)
		defer ticker.Stop()
	wait:
		for {
			// resubmitting covers anything a full queue turned away
			v.sched.Submit(all)
			if !v.anyPending(all) {
				break
			}
			select {
			case <-ctx.Done():
				break wait
			case <-ticker.C:
			}
		}
	}

	for _, req := range all {
		fmt.Fprintln(w, req.URL)
		if v.cache != nil {
			if s := preview.Placeholder(v.peek(req), 0); s != "" {
				fmt.Fprintf(w, "%s\x1b[0m\n", s)
			}
		}
		fmt.Fprintln(w)
	}
}

func (v *Viewer) anyPending(reqs []preview.Request) bool {
	for _, req := range reqs {
		if v.peek(req).State == preview.Pending {
			return true
		}
	}
	return false
}

// peek reports malformed urls as failed so they never count as loading.
func (v *Viewer) peek(req preview.Request) preview.Result {
	if err := req.Validate(); err != nil {
		return preview.Result{State: preview.Failed, Err: err}
	}
	return v.cache.Peek(req)
}
