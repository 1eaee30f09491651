package render

import (
	"fmt"
	"strings"
)

// Strategy is how image bytes reach the renderer.
type Strategy int

const (
	// StrategyAuto picks per platform and renderer version.
	StrategyAuto Strategy = iota
	// StrategyStdin pipes the bytes and passes "-" as the source.
	StrategyStdin
	// StrategyTempFile writes a temporary file and passes its path.
	StrategyTempFile
)

// chafa before 1.12.4 fails to read images from stdin on Windows
// ("Failed to open '-': Unknown file format").
var stdinFixedOnWindows = Version{1, 12, 4}

func (s Strategy) String() string {
	switch s {
	case StrategyStdin:
		return "stdin"
	case StrategyTempFile:
		return "tempfile"
	default:
		return "auto"
	}
}

// ParseStrategy accepts "auto", "stdin" or "tempfile" (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StrategyAuto, nil
	case "stdin", "pipe":
		return StrategyStdin, nil
	case "tempfile", "temp", "file":
		return StrategyTempFile, nil
	}
	return StrategyAuto, fmt.Errorf("unknown render strategy %q", s)
}

// resolveStrategy turns StrategyAuto into a concrete strategy. An unknown
// version on Windows is treated as too old.
func resolveStrategy(requested Strategy, goos string, v Version) Strategy {
	if requested != StrategyAuto {
		return requested
	}
	if goos == "windows" && !v.AtLeast(stdinFixedOnWindows) {
		return StrategyTempFile
	}
	return StrategyStdin
}
