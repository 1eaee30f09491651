//go:build cgo && !windows

package store

import (
	// CGO sqlite driver (only on non-Windows platforms with CGO)
	_ "github.com/mattn/go-sqlite3"
)

func cgoSQLiteAvailable() bool {
	return true
}
