package preview

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultMaintenanceSchedule = "@every 10m"

// Optimizer is the store maintenance hook; *store.Store satisfies it.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Janitor periodically tidies the store and the in-memory caches.
type Janitor struct {
	cron  *cron.Cron
	cache *Cache
	opt   Optimizer
	log   zerolog.Logger
}

// NewJanitor schedules maintenance with a cron spec such as "@every 10m"
// or "0 4 * * *". opt may be nil.
func NewJanitor(c *Cache, opt Optimizer, schedule string, logger *zerolog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultMaintenanceSchedule
	}
	j := &Janitor{cron: cron.New(), cache: c, opt: opt, log: zerolog.Nop()}
	if logger != nil {
		j.log = logger.With().Str("component", "janitor").Logger()
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop waits for a running job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs one maintenance pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	start := time.Now()
	j.cache.DeleteExpired()
	if j.opt != nil {
		if err := j.opt.Optimize(ctx); err != nil {
			j.log.Error().Err(err).Msg("store maintenance failed")
		}
	}
	st := j.cache.Stats()
	j.log.Info().
		Int64("memo_hits", st.MemoHits).
		Int64("store_hits", st.StoreHits).
		Int64("renders", st.Renders).
		Int64("failures", st.Failures).
		Int64("store_errors", st.StoreErrors).
		Int("memo_len", st.MemoLen).
		Dur("took", time.Since(start)).
		Msg("maintenance")
}
