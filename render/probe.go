package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

const probeTimeout = 5 * time.Second

var versionRe = regexp.MustCompile(`(?m)^Chafa version (\d+)\.(\d+)\.(\d+)`)

// Version is a chafa release number. The zero Version means "present but
// the version string could not be read".
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether the version is unknown.
func (v Version) IsZero() bool { return v == Version{} }

// AtLeast compares dotted triples numerically.
func (v Version) AtLeast(want Version) bool {
	if v.Major != want.Major {
		return v.Major > want.Major
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// parseVersion looks for "Chafa version X.Y.Z" in stdout first and then in
// stderr; some builds print the banner on stderr.
func parseVersion(stdout, stderr []byte) (Version, bool) {
	for _, out := range [][]byte{stdout, stderr} {
		m := versionRe.FindSubmatch(out)
		if m == nil {
			continue
		}
		var v Version
		v.Major, _ = strconv.Atoi(string(m[1]))
		v.Minor, _ = strconv.Atoi(string(m[2]))
		v.Patch, _ = strconv.Atoi(string(m[3]))
		return v, true
	}
	return Version{}, false
}

// probeVersion runs `<path> --version`. Any failure to run it makes the
// renderer unavailable.
func probeVersion(path string) (Version, error) {
	bin, err := exec.LookPath(path)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "--version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureCmd(cmd)
	if err := cmd.Run(); err != nil {
		return Version{}, fmt.Errorf("%w: %s --version: %v", ErrUnavailable, path, err)
	}

	v, _ := parseVersion(stdout.Bytes(), stderr.Bytes())
	return v, nil
}
