package preview

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

type SchedulerOptions struct {
	Workers   int
	QueueSize int
	Logger    *zerolog.Logger
}

// Scheduler runs GetOrRender on a fixed pool of workers. Submit is fire
// and forget; results are read back with Cache.Peek.
type Scheduler struct {
	cache *Cache
	queue chan Request
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool

	dropped atomic.Int64
}

func NewScheduler(c *Cache, opts SchedulerOptions) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	s := &Scheduler{
		cache:   c,
		queue:   make(chan Request, opts.QueueSize),
		log:     zerolog.Nop(),
		pending: make(map[string]struct{}),
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "scheduler").Logger()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for i := 0; i < opts.Workers; i++ {
		go s.worker()
	}
	return s
}

// Submit queues the requests that still need work. It never blocks: known
// and already queued keys are skipped, and requests that do not fit in the
// queue are dropped until a later redraw submits them again.
func (s *Scheduler) Submit(reqs []Request) {
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			s.log.Debug().Err(err).Str("url", req.URL).Msg("skipping invalid request")
			continue
		}
		key := req.Key()
		if s.cache.Known(key) {
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if _, ok := s.pending[key]; ok {
			s.mu.Unlock()
			continue
		}
		select {
		case s.queue <- req:
			s.pending[key] = struct{}{}
		default:
			s.dropped.Add(1)
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) worker() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.queue:
			if _, err := s.cache.GetOrRender(s.ctx, req); err != nil {
				s.log.Debug().Err(err).Str("key", req.Key()).Msg("prefetch failed")
			}
			s.mu.Lock()
			delete(s.pending, req.Key())
			s.mu.Unlock()
		}
	}
}

// Pending is the number of queued or running requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dropped counts requests turned away by a full queue.
func (s *Scheduler) Dropped() int64 { return s.dropped.Load() }

// Close stops the workers and returns without waiting for them. Queued
// requests are abandoned; a load already running finishes in the background
// under its own fetch and render timeouts.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
