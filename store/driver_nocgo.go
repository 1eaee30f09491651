//go:build !cgo || windows

package store

func cgoSQLiteAvailable() bool {
	return false
}
