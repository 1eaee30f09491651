// Package preview composes the persistent store, the fetcher and the
// renderer into a single render cache, and runs the background prefetch
// workers that fill it.
//
// The redraw loop only ever calls Peek and Scheduler.Submit. Everything
// that blocks (network, subprocess, disk) happens in GetOrRender, which
// the scheduler's workers call.
package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/slzatz/termpreview/fetch"
	"github.com/slzatz/termpreview/render"
	"github.com/slzatz/termpreview/store"
)

const DefaultMemoCapacity = 256

// Store is the persistent layer. *store.Store satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, rowLimit int) error
}

var _ Store = (*store.Store)(nil)

type Options struct {
	RowLimit     int // passed to Store.Put, store.DefaultRowLimit when 0
	MemoCapacity int
	// NegativeTTL is how long a failed key is answered from memory
	// without retrying. 0 retries every time. Failures are never written
	// to the store.
	NegativeTTL time.Duration
	Logger      *zerolog.Logger
}

// Stats are counters since New.
type Stats struct {
	MemoHits    int64
	StoreHits   int64
	Renders     int64
	Failures    int64
	StoreErrors int64
	Shared      int64 // callers that waited on another caller's load
	MemoLen     int
}

// Cache is the render cache. The zero value is not usable; call New.
type Cache struct {
	store    Store
	renderer render.Renderer
	fetcher  fetch.Fetcher
	rowLimit int
	negTTL   time.Duration
	log      zerolog.Logger

	memo     *ttlcache.Cache[string, string]
	failures *ttlcache.Cache[string, error]
	group    singleflight.Group

	mu       sync.Mutex
	inflight map[string]int

	unavailable atomic.Bool

	memoHits, storeHits, renders, failed, storeErrs, shared atomic.Int64
}

// New builds a Cache. st may be nil, in which case renders only live in
// memory for the session.
func New(st Store, r render.Renderer, f fetch.Fetcher, opts Options) *Cache {
	if opts.RowLimit <= 0 {
		opts.RowLimit = store.DefaultRowLimit
	}
	if opts.MemoCapacity <= 0 {
		opts.MemoCapacity = DefaultMemoCapacity
	}
	c := &Cache{
		store:    st,
		renderer: r,
		fetcher:  f,
		rowLimit: opts.RowLimit,
		negTTL:   opts.NegativeTTL,
		log:      zerolog.Nop(),
		inflight: make(map[string]int),
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "preview").Logger()
	}

	c.memo = ttlcache.New[string, string](
		ttlcache.WithCapacity[string, string](uint64(opts.MemoCapacity)),
	)
	// failures are always remembered for display; they only short-circuit
	// loads when negTTL > 0
	failTTL := ttlcache.NoTTL
	if c.negTTL > 0 {
		failTTL = c.negTTL
	}
	c.failures = ttlcache.New[string, error](
		ttlcache.WithTTL[string, error](failTTL),
		ttlcache.WithCapacity[string, error](uint64(opts.MemoCapacity)),
		ttlcache.WithDisableTouchOnHit[string, error](),
	)
	return c
}

// GetOrRender returns the terminal art for req, loading it from the store
// or fetching and rendering it when needed. Concurrent calls for the same
// key share one load.
func (c *Cache) GetOrRender(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := c.Probe(ctx); err != nil {
		return "", err
	}

	key := req.Key()
	if item := c.memo.Get(key); item != nil {
		c.memoHits.Add(1)
		return item.Value(), nil
	}
	if err := c.negative(key); err != nil {
		return "", err
	}

	c.enter(key)
	defer c.leave(key)

	// the load outlives any single caller; fetch and render carry their
	// own timeouts
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.load(loadCtx, req, key)
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Probe asks the renderer whether it can work at all. The renderer decides
// once; after a failure Peek reports Unavailable for every request.
func (c *Cache) Probe(ctx context.Context) error {
	if err := c.renderer.Available(ctx); err != nil {
		c.unavailable.Store(true)
		return err
	}
	return nil
}

func (c *Cache) load(ctx context.Context, req Request, key string) (string, error) {
	if item := c.memo.Get(key); item != nil {
		return item.Value(), nil
	}
	if text, ok := c.fromStore(ctx, key); ok {
		c.storeHits.Add(1)
		c.remember(key, text)
		return text, nil
	}

	img, err := c.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return "", c.fail(key, err)
	}
	text, err := c.renderer.Render(ctx, img, req.Width, req.Height)
	if err != nil {
		if errors.Is(err, render.ErrUnavailable) {
			c.unavailable.Store(true)
			return "", err
		}
		return "", c.fail(key, err)
	}
	c.renders.Add(1)

	c.persist(ctx, key, text)
	c.remember(key, text)
	return text, nil
}

// fromStore treats read errors, NULL rows and corrupt payloads as misses.
func (c *Cache) fromStore(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.storeErrs.Add(1)
		c.log.Error().Err(err).Str("key", key).Msg("store read failed")
		return "", false
	}
	if !found || data == nil {
		return "", false
	}
	text, err := decompress(data)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		return "", false
	}
	return text, true
}

// persist is best effort; the caller still gets the text.
func (c *Cache) persist(ctx context.Context, key, text string) {
	if c.store == nil {
		return
	}
	data, err := compress(text)
	if err == nil {
		err = c.store.Put(ctx, key, data, c.rowLimit)
	}
	if err != nil {
		c.storeErrs.Add(1)
		c.log.Error().Err(err).Str("key", key).Msg("store write failed")
	}
}

func (c *Cache) remember(key, text string) {
	c.memo.Set(key, text, ttlcache.DefaultTTL)
	c.failures.Delete(key)
}

func (c *Cache) fail(key string, err error) error {
	c.failed.Add(1)
	c.failures.Set(key, err, ttlcache.DefaultTTL)
	c.log.Warn().Err(err).Str("key", key).Msg("preview failed")
	return err
}

func (c *Cache) negative(key string) error {
	if c.negTTL <= 0 {
		return nil
	}
	if item := c.failures.Get(key); item != nil {
		return item.Value()
	}
	return nil
}

func (c *Cache) enter(key string) {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
}

func (c *Cache) leave(key string) {
	c.mu.Lock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func (c *Cache) inFlight(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key]
}

// Known reports whether key needs no further work right now: it is
// rendered, recently failed, or being loaded. It never blocks on I/O.
func (c *Cache) Known(key string) bool {
	if c.memo.Has(key) || c.inFlight(key) > 0 {
		return true
	}
	return c.negTTL > 0 && c.failures.Has(key)
}

// DeleteExpired drops expired negative entries.
func (c *Cache) DeleteExpired() {
	c.failures.DeleteExpired()
}

func (c *Cache) Stats() Stats {
	return Stats{
		MemoHits:    c.memoHits.Load(),
		StoreHits:   c.storeHits.Load(),
		Renders:     c.renders.Load(),
		Failures:    c.failed.Load(),
		StoreErrors: c.storeErrs.Load(),
		Shared:      c.shared.Load(),
		MemoLen:     c.memo.Len(),
	}
}
