//go:build windows

package main

import (
	"time"

	"github.com/slzatz/termpreview/rawmode"
)

// setupSignalHandling polls for terminal size changes since Windows has
// no SIGWINCH.
func setupSignalHandling(done <-chan struct{}) <-chan rawmode.Winsize {
	sizes := make(chan rawmode.Winsize, 1)
	go func() {
		ws, err := rawmode.GetWindowSize()
		if err != nil {
			return // If we can't get initial size, skip resize detection
		}
		prev := *ws

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				current, err := rawmode.GetWindowSize()
				if err != nil {
					continue
				}
				if *current != prev {
					prev = *current
					select {
					case sizes <- prev:
					default:
					}
				}
			}
		}
	}()
	return sizes
}
