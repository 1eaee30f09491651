// Package render turns raw image bytes into terminal art by running chafa
// (https://hpjansson.org/chafa/) as a subprocess.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPath    = "chafa"
	defaultLevel   = 9
	defaultTimeout = 10 * time.Second
	waitDelay      = time.Second
	maxStderr      = 512
)

// chafa ends a frame by moving the cursor back up over it
var cursorUp = regexp.MustCompile(`\x1b\[\d*A`)

// Renderer converts image bytes to text sized in terminal cells.
type Renderer interface {
	// Available reports whether rendering can work at all. The answer is
	// fixed after the first call.
	Available(ctx context.Context) error
	Render(ctx context.Context, img []byte, width, height int) (string, error)
}

// Options configures a Chafa renderer. Zero values get defaults.
type Options struct {
	Path     string   // binary name or path, "chafa" by default
	Strategy Strategy // how bytes are handed over, auto by default
	Optimize int      // --optimize level, 9 by default
	Work     int      // --work level, 9 by default
	Timeout  time.Duration
	TempDir  string // for StrategyTempFile, os.TempDir() by default
	// PrescalePixels fits larger images inside a square of this many
	// pixels before rendering; 0 disables.
	PrescalePixels int
	Logger         *zerolog.Logger
}

// Chafa is the subprocess-backed Renderer.
type Chafa struct {
	opts Options
	log  zerolog.Logger

	once     sync.Once
	version  Version
	strategy Strategy
	probeErr error

	probes atomic.Int32
	spawns atomic.Int32
}

var _ Renderer = (*Chafa)(nil)

// NewChafa returns a renderer; nothing is executed until the first call.
func NewChafa(opts Options) *Chafa {
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.Optimize == 0 {
		opts.Optimize = defaultLevel
	}
	if opts.Work == 0 {
		opts.Work = defaultLevel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	c := &Chafa{opts: opts, log: zerolog.Nop()}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "render").Logger()
	}
	return c
}

// Available probes the binary once and remembers the outcome, including
// the I/O strategy for every later render.
func (c *Chafa) Available(ctx context.Context) error {
	c.once.Do(func() {
		c.probes.Add(1)
		c.version, c.probeErr = probeVersion(c.opts.Path)
		if c.probeErr != nil {
			c.log.Warn().Err(c.probeErr).Msg("image previews disabled")
			return
		}
		c.strategy = resolveStrategy(c.opts.Strategy, runtime.GOOS, c.version)
		c.log.Info().
			Str("version", c.version.String()).
			Str("strategy", c.strategy.String()).
			Msg("renderer detected")
	})
	return c.probeErr
}

// Version returns the probed version. It is only meaningful after
// Available returned nil.
func (c *Chafa) Version() Version { return c.version }

// Strategy returns the strategy chosen by the probe.
func (c *Chafa) Strategy() Strategy { return c.strategy }

// Render runs chafa on img and returns the cleaned output.
func (c *Chafa) Render(ctx context.Context, img []byte, width, height int) (string, error) {
	if err := c.Available(ctx); err != nil {
		return "", err
	}
	if width < 1 || height < 1 {
		return "", fmt.Errorf("render: invalid size %dx%d", width, height)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	// decoding is not interruptible; maxDecodePixels bounds its cost and the
	// deadline is checked once it returns
	img = Prescale(img, c.opts.PrescalePixels)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &InvocationError{
			TimedOut: errors.Is(ctxErr, context.DeadlineExceeded),
			Timeout:  c.opts.Timeout,
			Err:      ctxErr,
		}
	}

	src := "-"
	var stdin io.Reader
	if c.strategy == StrategyTempFile {
		path, err := writeTemp(c.opts.TempDir, img)
		if err != nil {
			return "", &InvocationError{Err: err}
		}
		defer os.Remove(path)
		src = path
	} else {
		stdin = bytes.NewReader(img)
	}

	cmd := exec.CommandContext(ctx, c.opts.Path, c.args(width, height, src)...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureCmd(cmd)
	cmd.WaitDelay = waitDelay

	c.spawns.Add(1)
	start := time.Now()
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &InvocationError{
			TimedOut: errors.Is(ctxErr, context.DeadlineExceeded),
			Timeout:  c.opts.Timeout,
			Err:      ctxErr,
		}
	}
	if err != nil {
		ie := &InvocationError{Stderr: tail(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ie.ExitCode = exitErr.ExitCode()
		}
		return "", ie
	}

	c.log.Debug().
		Int("bytes", len(img)).
		Str("size", sizeArg(width, height)).
		Dur("took", time.Since(start)).
		Msg("rendered")
	return cleanOutput(stdout.Bytes()), nil
}

func (c *Chafa) args(width, height int, src string) []string {
	return []string{
		"--duration", "0",
		"--optimize", strconv.Itoa(c.opts.Optimize),
		"--size", sizeArg(width, height),
		"--work", strconv.Itoa(c.opts.Work),
		"--polite", "on",
		src,
	}
}

func sizeArg(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

// cleanOutput keeps everything before the first cursor-up sequence, drops
// carriage returns and trims surrounding whitespace.
func cleanOutput(out []byte) string {
	s := strings.ToValidUTF8(string(out), "�")
	if loc := cursorUp.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(s)
}

// writeTemp writes img to a new, uniquely named file and returns its path.
// The caller removes it.
func writeTemp(dir string, img []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "termpreview-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(img); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
