package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/slzatz/termpreview/render"
	"github.com/slzatz/termpreview/store"
)

// runInit performs first-time setup: writes a default config file and
// creates the preview cache database.
func runInit(configPath string, w io.Writer) error {
	fmt.Fprintln(w, "termpreview first-time setup")
	fmt.Fprintln(w, "============================")
	fmt.Fprintln(w)

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists; remove or rename it to reinitialize", configPath)
	}

	cfg := DefaultConfig()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	fmt.Fprintf(w, "Created %s\n", configPath)

	// pure Go driver for init since it works everywhere
	st, err := store.Open(cfg.CacheDB, store.Options{Driver: store.DriverModernC})
	if err != nil {
		return err
	}
	if err := st.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Created preview cache %s\n", cfg.CacheDB)

	r := render.NewChafa(cfg.renderOptions(nil))
	if err := r.Available(context.Background()); err != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warning: chafa was not found; image previews will be disabled.")
		fmt.Fprintln(w, "Install it from https://hpjansson.org/chafa/ or set chafa_path.")
	} else {
		fmt.Fprintf(w, "Found chafa %s (using %s)\n", r.Version(), r.Strategy())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Setup complete!")
	return nil
}
