package main

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/slzatz/termpreview/fetch"
	"github.com/slzatz/termpreview/preview"
	"github.com/slzatz/termpreview/render"
	"github.com/slzatz/termpreview/store"
)

// AppContext owns the preview pipeline for the life of the process: it is
// opened once, handed to the viewer and closed once.
type AppContext struct {
	Config *Config
	Driver store.Driver
	Log    *zerolog.Logger

	Store     *store.Store // nil when the cache file could not be opened
	Renderer  *render.Chafa
	Cache     *preview.Cache // nil when previews are disabled
	Scheduler *preview.Scheduler
	Janitor   *preview.Janitor

	logFile io.Closer
}

// NewAppContext creates the application context; nothing is opened until
// Open.
func NewAppContext(cfg *Config, driver store.Driver) *AppContext {
	nop := zerolog.Nop()
	return &AppContext{Config: cfg, Driver: driver, Log: &nop}
}

// Open starts logging and the preview pipeline. A cache file that cannot
// be opened is not fatal: previews then live in memory only.
func (app *AppContext) Open() error {
	cfg := app.Config
	if cfg.LogFile != "" {
		logger, closer, err := setupLogging(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return err
		}
		app.Log, app.logFile = logger, closer
	}

	if !cfg.PreviewsEnabled() {
		app.Log.Info().Bool("monochrome", cfg.Monochrome).Msg("image previews disabled by config")
		return nil
	}

	st, err := store.Open(cfg.CacheDB, store.Options{Driver: app.Driver, Logger: app.Log})
	if err != nil {
		var openErr *store.OpenError
		if !errors.As(err, &openErr) {
			return err
		}
		app.Log.Error().Err(err).Msg("running without a persistent preview cache")
	} else {
		app.Store = st
		app.Log.Info().Str("path", st.Path()).Str("driver", app.Driver.String()).Msg("preview cache opened")
	}

	app.Renderer = render.NewChafa(cfg.renderOptions(app.Log))
	opts := preview.Options{
		RowLimit:     cfg.RowLimit,
		MemoCapacity: cfg.MemoCapacity,
		NegativeTTL:  cfg.NegativeTTL.Duration,
		Logger:       app.Log,
	}
	f := fetch.NewClient(cfg.fetchOptions(app.Log))
	// a nil *store.Store must not become a non-nil interface
	if app.Store != nil {
		app.Cache = preview.New(app.Store, app.Renderer, f, opts)
	} else {
		app.Cache = preview.New(nil, app.Renderer, f, opts)
	}

	app.Scheduler = preview.NewScheduler(app.Cache, preview.SchedulerOptions{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    app.Log,
	})

	var opt preview.Optimizer
	if app.Store != nil {
		opt = app.Store
	}
	app.Janitor, err = preview.NewJanitor(app.Cache, opt, cfg.Maintenance, app.Log)
	if err != nil {
		return err
	}
	app.Janitor.Start()

	// probe off the redraw path so the first screen does not wait on it
	go app.Cache.Probe(context.Background())
	return nil
}

// Close stops background work and releases the cache file. It is safe to
// call more than once.
func (app *AppContext) Close() {
	if app.Scheduler != nil {
		app.Scheduler.Close()
	}
	if app.Janitor != nil {
		app.Janitor.Stop()
		app.Janitor = nil
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Log.Error().Err(err).Msg("closing preview cache")
		}
	}
	if app.logFile != nil {
		app.logFile.Close()
		app.logFile = nil
	}
}
