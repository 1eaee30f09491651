//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/slzatz/termpreview/rawmode"
)

// setupSignalHandling reports the new terminal size after every SIGWINCH.
func setupSignalHandling(done <-chan struct{}) <-chan rawmode.Winsize {
	sizes := make(chan rawmode.Winsize, 1)
	signal_chan := make(chan os.Signal, 1)
	signal.Notify(signal_chan, syscall.SIGWINCH)

	go func() {
		defer signal.Stop(signal_chan)
		for {
			select {
			case <-done:
				return
			case <-signal_chan:
				ws, err := rawmode.GetWindowSize()
				if err != nil {
					continue
				}
				select {
				case sizes <- *ws:
				default:
				}
			}
		}
	}()
	return sizes
}
