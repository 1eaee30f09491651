// cache_admin inspects and trims the preview cache database.
//
//	cache_admin [-db path] stats
//	cache_admin [-db path] keys [n]
//	cache_admin [-db path] show <key>
//	cache_admin [-db path] [-y] prune <rows>
//	cache_admin [-db path] optimize
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/slzatz/termpreview/store"
)

func defaultDB() string {
	if p := os.Getenv("TERMPREVIEW_CACHE_DB"); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "xdcmd", "lru-cache.db")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "xdcmd", "lru-cache.db")
	}
	return "lru-cache.db"
}

func main() {
	dbPath := flag.String("db", defaultDB(), "preview cache database")
	yes := flag.Bool("y", false, "do not ask before pruning")
	flag.Bool("cgo-sqlite", false, "use the CGO SQLite driver when it is built in")
	flag.Bool("go-sqlite", false, "use the pure Go SQLite driver")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cache_admin [flags] stats|keys [n]|show <key>|prune <rows>|optimize")
		os.Exit(2)
	}

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(*dbPath, store.Options{Driver: store.DetermineDriver(os.Args[1:])})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := runCommand(context.Background(), st, args, *yes, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		st.Close()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, st *store.Store, args []string, yes bool, in io.Reader, out io.Writer) error {
	switch args[0] {
	case "stats":
		s, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "file:    %s\n", st.Path())
		fmt.Fprintf(out, "rows:    %d\n", s.Rows)
		fmt.Fprintf(out, "payload: %d bytes\n", s.Bytes)
		if s.Rows > 0 {
			fmt.Fprintf(out, "oldest:  %s\n", s.Oldest.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "newest:  %s\n", s.Newest.Format("2006-01-02 15:04:05"))
		}
		return nil

	case "keys":
		keys, err := st.Keys(ctx)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("keys: invalid count %q", args[1])
			}
			if n < len(keys) {
				keys = keys[:n]
			}
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil

	case "show":
		if len(args) < 2 {
			return fmt.Errorf("show needs a key")
		}
		data, found, err := st.Get(ctx, args[1])
		if err != nil {
			return err
		}
		if !found || data == nil {
			return fmt.Errorf("%s is not cached", args[1])
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer zr.Close()
		if _, err := io.Copy(out, zr); err != nil {
			return err
		}
		fmt.Fprintln(out, "\x1b[0m")
		return nil

	case "prune":
		if len(args) < 2 {
			return fmt.Errorf("prune needs a row count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("prune: invalid row count %q", args[1])
		}
		if !yes {
			fmt.Fprintf(out, "Keep only the %d most recently used previews? (y or N): ", n)
			res, _ := bufio.NewReader(in).ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(res)), "y") {
				fmt.Fprintln(out, "Nothing removed")
				return nil
			}
		}
		removed, err := st.Prune(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d rows\n", removed)
		return nil

	case "optimize":
		if err := st.Optimize(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Optimized")
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}
