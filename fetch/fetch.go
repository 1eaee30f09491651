// Package fetch downloads image bytes for previews.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout   = 3 * time.Second
	DefaultMaxBytes  = 8 << 20
	DefaultUserAgent = "termpreview/1.0"
)

// Fetcher returns the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Error is any failed fetch. StatusCode is 0 when no response was read.
type Error struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Logger    *zerolog.Logger
}

// Client is a Fetcher on top of a shared resty client.
type Client struct {
	rc       *resty.Client
	maxBytes int64
	log      zerolog.Logger
}

var _ Fetcher = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "fetch").Logger()
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetLogger(restyLogger{log})
	return &Client{rc: rc, maxBytes: opts.MaxBytes, log: log}
}

// Fetch downloads url. The body is streamed and capped at MaxBytes.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := validation.Validate(url, validation.Required, is.RequestURL); err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, &Error{URL: url, Timeout: isTimeout(err), Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		io.Copy(io.Discard, io.LimitReader(body, 4096))
		return nil, &Error{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return nil, &Error{URL: url, Timeout: isTimeout(err), Err: err}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &Error{URL: url, Err: fmt.Errorf("body exceeds %d bytes", c.maxBytes)}
	}

	c.log.Debug().Str("url", url).Int("bytes", len(data)).Msg("fetched")
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// restyLogger routes resty's own warnings into zerolog instead of stderr,
// which would corrupt the terminal UI.
type restyLogger struct{ log zerolog.Logger }

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
