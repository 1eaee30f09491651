package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/slzatz/termpreview/fetch"
	"github.com/slzatz/termpreview/preview"
	"github.com/slzatz/termpreview/render"
	"github.com/slzatz/termpreview/store"
)

const envPrefix = "TERMPREVIEW_"

// Duration reads "30s" style values from both config.json and the
// environment.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	ImagePreview bool `json:"image_preview" env:"IMAGE_PREVIEW"`
	Width        int  `json:"width" env:"WIDTH"`
	Height       int  `json:"height" env:"HEIGHT"`
	Monochrome   bool `json:"monochrome" env:"MONOCHROME"`

	CacheDB      string   `json:"cache_db" env:"CACHE_DB"`
	Driver       string   `json:"driver" env:"DRIVER"`
	RowLimit     int      `json:"row_limit" env:"ROW_LIMIT"`
	MemoCapacity int      `json:"memo_capacity" env:"MEMO_CAPACITY"`
	NegativeTTL  Duration `json:"negative_ttl" env:"NEGATIVE_TTL"`
	Workers      int      `json:"workers" env:"WORKERS"`
	QueueSize    int      `json:"queue_size" env:"QUEUE_SIZE"`

	FetchTimeout Duration `json:"fetch_timeout" env:"FETCH_TIMEOUT"`
	MaxBodyBytes int64    `json:"max_body_bytes" env:"MAX_BODY_BYTES"`
	UserAgent    string   `json:"user_agent" env:"USER_AGENT"`

	ChafaPath      string   `json:"chafa_path" env:"CHAFA_PATH"`
	Strategy       string   `json:"strategy" env:"STRATEGY"`
	Optimize       int      `json:"optimize" env:"OPTIMIZE"`
	Work           int      `json:"work" env:"WORK"`
	RenderTimeout  Duration `json:"render_timeout" env:"RENDER_TIMEOUT"`
	PrescalePixels int      `json:"prescale_pixels" env:"PRESCALE_PIXELS"`

	Maintenance string `json:"maintenance" env:"MAINTENANCE"`
	LogFile     string `json:"log_file" env:"LOG_FILE"`
	LogLevel    string `json:"log_level" env:"LOG_LEVEL"`
}

// cacheDir is $XDG_CACHE_HOME/xdcmd, falling back to the OS cache dir.
func cacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "xdcmd")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "xdcmd")
	}
	return filepath.Join(os.TempDir(), "xdcmd")
}

func DefaultConfig() *Config {
	dir := cacheDir()
	return &Config{
		ImagePreview:   true,
		Width:          40,
		Height:         20,
		CacheDB:        filepath.Join(dir, "lru-cache.db"),
		Driver:         "modernc",
		RowLimit:       store.DefaultRowLimit,
		MemoCapacity:   preview.DefaultMemoCapacity,
		NegativeTTL:    Duration{30 * time.Second},
		Workers:        preview.DefaultWorkers,
		QueueSize:      preview.DefaultQueueSize,
		FetchTimeout:   Duration{fetch.DefaultTimeout},
		MaxBodyBytes:   fetch.DefaultMaxBytes,
		UserAgent:      fetch.DefaultUserAgent,
		ChafaPath:      "chafa",
		Strategy:       "auto",
		Optimize:       9,
		Work:           9,
		RenderTimeout:  Duration{10 * time.Second},
		PrescalePixels: 1024,
		Maintenance:    preview.DefaultMaintenanceSchedule,
		LogFile:        filepath.Join(dir, "termpreview.log"),
		LogLevel:       "info",
	}
}

// FromFile overlays the JSON file at path onto cfg. A missing file leaves
// cfg untouched.
func FromFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadConfig layers defaults, config.json, .env and TERMPREVIEW_*
// variables, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := FromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1), validation.Max(preview.MaxCells)),
		validation.Field(&c.Height, validation.Required, validation.Min(1), validation.Max(preview.MaxCells)),
		validation.Field(&c.CacheDB, validation.Required),
		validation.Field(&c.Driver, validation.In("modernc", "mattn", "cgo", "sqlite", "sqlite3")),
		validation.Field(&c.RowLimit, validation.Min(1)),
		validation.Field(&c.MemoCapacity, validation.Min(1)),
		validation.Field(&c.NegativeTTL, validation.By(nonNegative)),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
		validation.Field(&c.QueueSize, validation.Min(1)),
		validation.Field(&c.FetchTimeout, validation.By(nonNegative)),
		validation.Field(&c.MaxBodyBytes, validation.Min(int64(1))),
		validation.Field(&c.ChafaPath, validation.Required),
		validation.Field(&c.Strategy, validation.By(func(v interface{}) error {
			_, err := render.ParseStrategy(v.(string))
			return err
		})),
		validation.Field(&c.Optimize, validation.Min(1), validation.Max(9)),
		validation.Field(&c.Work, validation.Min(1), validation.Max(9)),
		validation.Field(&c.RenderTimeout, validation.By(nonNegative)),
		validation.Field(&c.PrescalePixels, validation.Min(0)),
		validation.Field(&c.Maintenance, validation.By(func(v interface{}) error {
			s := v.(string)
			if s == "" {
				return nil
			}
			_, err := cron.ParseStandard(s)
			return err
		})),
		validation.Field(&c.LogLevel, validation.By(func(v interface{}) error {
			_, err := zerolog.ParseLevel(v.(string))
			return err
		})),
	)
}

func nonNegative(v interface{}) error {
	if d, ok := v.(Duration); ok && d.Duration < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// PreviewsEnabled is false when previews are switched off or the terminal
// is monochrome.
func (c *Config) PreviewsEnabled() bool {
	return c.ImagePreview && !c.Monochrome
}

func (c *Config) renderOptions(log *zerolog.Logger) render.Options {
	strategy, _ := render.ParseStrategy(c.Strategy)
	return render.Options{
		Path:           c.ChafaPath,
		Strategy:       strategy,
		Optimize:       c.Optimize,
		Work:           c.Work,
		Timeout:        c.RenderTimeout.Duration,
		PrescalePixels: c.PrescalePixels,
		Logger:         log,
	}
}

func (c *Config) fetchOptions(log *zerolog.Logger) fetch.Options {
	return fetch.Options{
		Timeout:   c.FetchTimeout.Duration,
		MaxBytes:  c.MaxBodyBytes,
		UserAgent: c.UserAgent,
		Logger:    log,
	}
}
