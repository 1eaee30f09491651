package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakeChafa writes an executable shell script standing in for chafa. body
// runs for every invocation other than --version.
func fakeChafa(t *testing.T, versionLine, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a unix shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "chafa")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then\n" + versionLine + "\nexit 0\nfi\n" +
		"echo \"$@\" > \"" + filepath.Join(dir, "args") + "\"\n" +
		body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func readArgs(t *testing.T, chafaPath string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(filepath.Dir(chafaPath), "args"))
	if err != nil {
		t.Fatalf("fake chafa recorded no args: %v", err)
	}
	return strings.Fields(string(b))
}

const echoSource = `src=""
for a in "$@"; do src="$a"; done
if [ "$src" = "-" ]; then cat; else cat "$src"; fi
printf '\r\n\033[12A\033[?25h'`

func TestRenderStdin(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.14.0"`, echoSource)
	c := NewChafa(Options{Path: bin, Strategy: StrategyStdin})

	out, err := c.Render(context.Background(), []byte("  pixels\r\nmore  "), 40, 20)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "pixels\nmore" {
		t.Errorf("Render = %q, want %q", out, "pixels\nmore")
	}
	if v := c.Version(); v != (Version{1, 14, 0}) {
		t.Errorf("Version = %v", v)
	}

	want := []string{"--duration", "0", "--optimize", "9", "--size", "40x20", "--work", "9", "--polite", "on", "-"}
	got := readArgs(t, bin)
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestRenderTempFile(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.10.0"`, echoSource)
	tmp := t.TempDir()
	c := NewChafa(Options{Path: bin, Strategy: StrategyTempFile, TempDir: tmp, Optimize: 3, Work: 5})

	out, err := c.Render(context.Background(), []byte("art"), 8, 4)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "art" {
		t.Errorf("Render = %q, want %q", out, "art")
	}

	args := readArgs(t, bin)
	src := args[len(args)-1]
	if filepath.Dir(src) != tmp {
		t.Errorf("source %q not in temp dir %q", src, tmp)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("temp file %q still exists", src)
	}
	if args[3] != "3" || args[7] != "5" {
		t.Errorf("optimize/work not passed through: %v", args)
	}
}

func TestRenderNonZeroExit(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.14.0"`, `echo "Failed to open '-': Unknown file format" >&2; exit 2`)
	c := NewChafa(Options{Path: bin})

	_, err := c.Render(context.Background(), []byte("junk"), 10, 10)
	var ie *InvocationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InvocationError, got %T %v", err, err)
	}
	if ie.ExitCode != 2 || ie.TimedOut {
		t.Errorf("unexpected error fields %+v", ie)
	}
	if !strings.Contains(ie.Stderr, "Unknown file format") {
		t.Errorf("stderr not captured: %q", ie.Stderr)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("invocation failure must not look like an unavailable tool")
	}
}

func TestRenderNonZeroExitRemovesTempFile(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.14.0"`, `exit 2`)
	tmp := t.TempDir()
	c := NewChafa(Options{Path: bin, Strategy: StrategyTempFile, TempDir: tmp})

	_, err := c.Render(context.Background(), []byte("img"), 10, 10)
	var ie *InvocationError
	if !errors.As(err, &ie) || ie.ExitCode != 2 {
		t.Fatalf("expected *InvocationError with exit code 2, got %v", err)
	}
	args := readArgs(t, bin)
	if src := args[len(args)-1]; filepath.Dir(src) != tmp {
		t.Errorf("chafa was not given a temp file in %s: %q", tmp, src)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temp file left behind: %v", entries)
	}
}

func TestRenderTimeout(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.14.0"`, `sleep 10`)
	tmp := t.TempDir()
	c := NewChafa(Options{
		Path:     bin,
		Strategy: StrategyTempFile,
		TempDir:  tmp,
		Timeout:  200 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Render(context.Background(), []byte("img"), 10, 10)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("render took %v, timeout not enforced", elapsed)
	}
	var ie *InvocationError
	if !errors.As(err, &ie) || !ie.TimedOut {
		t.Fatalf("expected timed out *InvocationError, got %v", err)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned up: %v", entries)
	}
}

func TestUnavailableProbedOnce(t *testing.T) {
	c := NewChafa(Options{Path: filepath.Join(t.TempDir(), "no-such-chafa")})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.Render(ctx, []byte("x"), 10, 10); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if err := c.Available(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Available = %v", err)
	}
	if n := c.probes.Load(); n != 1 {
		t.Errorf("probed %d times, want 1", n)
	}
	if n := c.spawns.Load(); n != 0 {
		t.Errorf("spawned %d renders, want 0", n)
	}
}

func TestVersionOnStderr(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.12.4" >&2`, echoSource)
	c := NewChafa(Options{Path: bin})
	if err := c.Available(context.Background()); err != nil {
		t.Fatalf("Available: %v", err)
	}
	if v := c.Version(); v != (Version{1, 12, 4}) {
		t.Errorf("Version = %v", v)
	}
}

func TestRenderInvalidSize(t *testing.T) {
	bin := fakeChafa(t, `echo "Chafa version 1.14.0"`, echoSource)
	c := NewChafa(Options{Path: bin})
	if _, err := c.Render(context.Background(), []byte("x"), 0, 10); err == nil {
		t.Error("expected error for zero width")
	}
	if n := c.spawns.Load(); n != 0 {
		t.Errorf("spawned %d renders for invalid size", n)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name           string
		stdout, stderr string
		want           Version
		ok             bool
	}{
		{"stdout", "Chafa version 1.14.0\n\nLoaders: ...", "", Version{1, 14, 0}, true},
		{"stderr", "", "Chafa version 1.8.10\n", Version{1, 8, 10}, true},
		{"stdout wins", "Chafa version 1.2.3", "Chafa version 9.9.9", Version{1, 2, 3}, true},
		{"garbage", "chafa 1.x", "", Version{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseVersion([]byte(tt.stdout), []byte(tt.stderr))
			if got != tt.want || ok != tt.ok {
				t.Errorf("parseVersion = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	if !(Version{1, 12, 10}).AtLeast(Version{1, 12, 4}) {
		t.Error("1.12.10 should be >= 1.12.4 numerically")
	}
	if (Version{1, 9, 99}).AtLeast(Version{1, 12, 4}) {
		t.Error("1.9.99 should be < 1.12.4")
	}
	if !(Version{2, 0, 0}).AtLeast(Version{1, 12, 4}) {
		t.Error("2.0.0 should be >= 1.12.4")
	}
}

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		requested Strategy
		goos      string
		v         Version
		want      Strategy
	}{
		{StrategyAuto, "linux", Version{1, 6, 0}, StrategyStdin},
		{StrategyAuto, "windows", Version{1, 12, 3}, StrategyTempFile},
		{StrategyAuto, "windows", Version{1, 12, 4}, StrategyStdin},
		{StrategyAuto, "windows", Version{}, StrategyTempFile},
		{StrategyStdin, "windows", Version{1, 0, 0}, StrategyStdin},
		{StrategyTempFile, "darwin", Version{1, 14, 0}, StrategyTempFile},
	}
	for _, tt := range tests {
		if got := resolveStrategy(tt.requested, tt.goos, tt.v); got != tt.want {
			t.Errorf("resolveStrategy(%v, %s, %v) = %v, want %v", tt.requested, tt.goos, tt.v, got, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":         StrategyAuto,
		"AUTO":     StrategyAuto,
		"stdin":    StrategyStdin,
		"tempfile": StrategyTempFile,
		" file ":   StrategyTempFile,
	} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("sixel"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestCleanOutput(t *testing.T) {
	tests := map[string]string{
		"a\r\nb\x1b[3A\x1b[?25h":  "a\nb",
		"  only art  ":            "only art",
		"x\x1b[A tail":            "x",
		"\x1b[31mred\x1b[0m\r\n": "\x1b[31mred\x1b[0m",
		"":                        "",
	}
	for in, want := range tests {
		if got := cleanOutput([]byte(in)); got != want {
			t.Errorf("cleanOutput(%q) = %q, want %q", in, got, want)
		}
	}
}
