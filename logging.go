package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// setupLogging sends logs to path. stdout belongs to the terminal UI, so
// nothing is ever logged there. The returned closer releases the file.
func setupLogging(path, level string) (*zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = f
		w.NoColor = true
		w.TimeFormat = time.RFC3339
	})
	logger := zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
	return &logger, f, nil
}
