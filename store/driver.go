package store

import (
	"database/sql"
	"runtime"

	// Pure Go sqlite driver (available on all platforms)
	_ "modernc.org/sqlite"
)

// Driver selects the SQLite implementation backing the cache file.
type Driver int

const (
	DriverModernC Driver = iota // Pure Go implementation (modernc.org/sqlite)
	DriverMattn                 // CGO implementation (mattn/go-sqlite3)
)

// Name returns the driver name for sql.Open.
func (d Driver) Name() string {
	switch d {
	case DriverMattn:
		return "sqlite3"
	default:
		return "sqlite"
	}
}

// String returns a human-readable name for the driver.
func (d Driver) String() string {
	switch d {
	case DriverMattn:
		return "mattn/go-sqlite3 (CGO)"
	default:
		return "modernc.org/sqlite (Pure Go)"
	}
}

// CGOAvailable reports whether the CGO driver was compiled in.
func CGOAvailable() bool {
	// On Windows, CGO SQLite is never available
	if runtime.GOOS == "windows" {
		return false
	}
	return cgoSQLiteAvailable()
}

// DetermineDriver picks a driver from command line arguments.
// --go-sqlite forces the pure Go driver, --cgo-sqlite selects the CGO driver
// when it was built in. Anything else gets the pure Go driver.
func DetermineDriver(args []string) Driver {
	if runtime.GOOS == "windows" {
		return DriverModernC
	}
	for _, arg := range args {
		switch arg {
		case "--go-sqlite":
			return DriverModernC
		case "--cgo-sqlite":
			if CGOAvailable() {
				return DriverMattn
			}
		}
	}
	return DriverModernC
}

// ParseDriver maps a config value ("modernc", "mattn", "cgo") to a Driver.
// Unknown values and an unavailable CGO driver fall back to modernc.
func ParseDriver(s string) Driver {
	switch s {
	case "mattn", "cgo", "sqlite3":
		if CGOAvailable() {
			return DriverMattn
		}
	}
	return DriverModernC
}

func openDB(d Driver, dsn string) (*sql.DB, error) {
	return sql.Open(d.Name(), dsn)
}
