package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/slzatz/termpreview/rawmode"
	"github.com/slzatz/termpreview/store"
	"github.com/slzatz/termpreview/terminal"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.json", "config file")
	initFlag := flag.Bool("init", false, "write a default config and create the preview cache")
	once := flag.Bool("once", false, "print every preview and exit instead of starting the viewer")
	urlFile := flag.String("file", "", "read image urls from this file, one per line (- for stdin)")
	wait := flag.Duration("wait", 30*time.Second, "how long --once waits for previews")
	flag.Bool("cgo-sqlite", false, "use the CGO SQLite driver when it is built in")
	flag.Bool("go-sqlite", false, "use the pure Go SQLite driver")
	flag.Parse()

	if *initFlag {
		if err := runInit(*configPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	driver := store.ParseDriver(cfg.Driver)
	if flagSet("cgo-sqlite") || flagSet("go-sqlite") {
		driver = store.DetermineDriver(os.Args[1:])
	}

	urls, err := readURLs(flag.Args(), *urlFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading urls: %v\n", err)
		return 1
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: termpreview [flags] url... | --file urls.txt")
		flag.PrintDefaults()
		return 2
	}

	app := NewAppContext(cfg, driver)
	if err := app.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	v := NewViewer(app, urls, os.Stdout)
	if *once || !rawmode.IsTerminal() {
		ctx, cancel := context.WithTimeout(context.Background(), *wait)
		defer cancel()
		v.PrintAll(ctx, os.Stdout)
		return 0
	}
	return runInteractive(v)
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// readURLs collects urls from the arguments and, when path is set, from a
// file with one url per line. Blank lines and # comments are skipped.
func readURLs(args []string, path string, stdin io.Reader) ([]string, error) {
	urls := append([]string(nil), args...)
	if path == "" {
		return urls, nil
	}

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func runInteractive(v *Viewer) int {
	origCfg, err := rawmode.Enable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error enabling raw mode: %v\n", err)
		return 1
	}
	defer func() {
		fmt.Print("\x1b[2J\x1b[H") //clears the screen and sends cursor home
		fmt.Print("\x1b[?25h")     //shows the cursor
		if err := rawmode.Restore(origCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: disabling raw mode: %s\r\n", err)
		}
	}()

	if ws, err := rawmode.GetWindowSize(); err == nil {
		v.resize(int(ws.Row), int(ws.Col))
	}

	done := make(chan struct{})
	defer close(done)

	keys := make(chan int)
	go func() {
		defer close(keys)
		for {
			key, err := terminal.ReadKey()
			if err != nil {
				return
			}
			k := int(key.Regular)
			if key.Regular == 0 {
				k = key.Special
			}
			select {
			case keys <- k:
			case <-done:
				return
			}
		}
	}()

	v.Run(keys, setupSignalHandling(done))
	return 0
}
