package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"civic-cache/internal/common/errors"
	"civic-cache/internal/common/logging"
)

// Fetcher produces a fresh value for a cache key, typically by calling an
// upstream government API adapter. Fetchers own their own timeouts; the
// refresher only bounds how many run at once.
type Fetcher func(ctx context.Context, key string) (interface{}, error)

// RefreshOptions parameterize one refresh run.
type RefreshOptions struct {
	// MaxConcurrent caps fetchers in flight per batch (default 3).
	MaxConcurrent int
	// Delay is the pause between batches, kept nonzero in production so a
	// refresh run does not burn through upstream rate limits.
	Delay time.Duration
	// Fetchers overrides or extends the registered fetchers for this run.
	Fetchers map[string]Fetcher
	// Source tags the refreshed entries (default "refresh").
	Source string
}

// RefreshSummary reports the outcome of one refresh run.
type RefreshSummary struct {
	TotalProcessed int   `json:"total_processed"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	DurationMs     int64 `json:"duration_ms"`
}

// Refresher proactively repopulates hot cache keys so predictable
// high-traffic lookups (member rosters, district maps) don't pay a cold
// miss. Each run is self-contained: the refresher keeps no state across
// runs besides the fetcher registry.
type Refresher struct {
	cache  *UnifiedCache
	logger logging.Logger

	mu       sync.RWMutex
	fetchers map[string]Fetcher

	cronMu   sync.Mutex
	schedule *cron.Cron
}

// NewRefresher creates a refresher over the unified cache.
func NewRefresher(cache *UnifiedCache, logger logging.Logger) *Refresher {
	return &Refresher{
		cache:    cache,
		logger:   logger,
		fetchers: make(map[string]Fetcher),
	}
}

// RegisterFetcher adds key to the known hot set with its fetcher.
func (r *Refresher) RegisterFetcher(key string, fetcher Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[key] = fetcher
}

// DefaultKeys returns the registered hot key set in stable order.
func (r *Refresher) DefaultKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.fetchers))
	for key := range r.fetchers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Refresh fetches and re-caches the given keys (the registered default
// set when keys is empty) in batches of at most MaxConcurrent, pausing
// Delay between batches. A batch advances once every key in it has
// settled. Individual fetcher failures are counted and never abort the
// run; each successful fetch becomes an independent cache Set, so a
// partial run never leaves a half-written entry.
func (r *Refresher) Refresh(ctx context.Context, keys []string, opts RefreshOptions) RefreshSummary {
	start := time.Now()

	if len(keys) == 0 {
		keys = r.DefaultKeys()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.Source == "" {
		opts.Source = "refresh"
	}

	fetchers := r.resolveFetchers(opts.Fetchers)

	var (
		resultMu   sync.Mutex
		successful int
		failed     int
		processed  int
	)

	for offset := 0; offset < len(keys); offset += opts.MaxConcurrent {
		if ctx.Err() != nil {
			break
		}

		end := offset + opts.MaxConcurrent
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[offset:end]

		var wg sync.WaitGroup
		for _, key := range batch {
			key := key
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := r.refreshKey(ctx, key, fetchers[key], opts.Source)

				resultMu.Lock()
				defer resultMu.Unlock()
				processed++
				if err != nil {
					failed++
				} else {
					successful++
				}
			}()
		}
		wg.Wait()

		if end < len(keys) && opts.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Delay):
			}
		}
	}

	summary := RefreshSummary{
		TotalProcessed: processed,
		Successful:     successful,
		Failed:         failed,
		DurationMs:     time.Since(start).Milliseconds(),
	}
	r.logger.Info("cache refresh finished",
		logging.Int("total", summary.TotalProcessed),
		logging.Int("successful", summary.Successful),
		logging.Int("failed", summary.Failed),
		logging.Any("duration_ms", summary.DurationMs),
	)
	return summary
}

// QuickRefresh re-caches a small slice of the hot set with tight pacing.
// Meant for manual recovery right after a bulk invalidation.
func (r *Refresher) QuickRefresh(ctx context.Context) RefreshSummary {
	keys := r.DefaultKeys()
	if len(keys) > 5 {
		keys = keys[:5]
	}
	return r.Refresh(ctx, keys, RefreshOptions{
		MaxConcurrent: 2,
		Delay:         100 * time.Millisecond,
	})
}

// FullRefresh re-caches the entire registered hot set with rate-limit
// friendly pacing.
func (r *Refresher) FullRefresh(ctx context.Context) RefreshSummary {
	return r.Refresh(ctx, nil, RefreshOptions{
		MaxConcurrent: 3,
		Delay:         500 * time.Millisecond,
	})
}

// StartSchedule runs FullRefresh on the given cron expression until
// StopSchedule is called.
func (r *Refresher) StartSchedule(spec string) error {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()

	if r.schedule != nil {
		return errors.ValidationError("refresh schedule already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		r.FullRefresh(context.Background())
	}); err != nil {
		return errors.ConfigError("invalid refresh schedule: " + err.Error())
	}

	c.Start()
	r.schedule = c
	r.logger.Info("refresh schedule started", logging.String("spec", spec))
	return nil
}

// StopSchedule stops the periodic refresh, waiting for an in-flight run.
func (r *Refresher) StopSchedule() {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()

	if r.schedule == nil {
		return
	}
	<-r.schedule.Stop().Done()
	r.schedule = nil
	r.logger.Info("refresh schedule stopped")
}

func (r *Refresher) resolveFetchers(overrides map[string]Fetcher) map[string]Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]Fetcher, len(r.fetchers)+len(overrides))
	for key, fetcher := range r.fetchers {
		merged[key] = fetcher
	}
	for key, fetcher := range overrides {
		merged[key] = fetcher
	}
	return merged
}

func (r *Refresher) refreshKey(ctx context.Context, key string, fetcher Fetcher, source string) error {
	if fetcher == nil {
		r.logger.Warn("no fetcher registered for key", logging.String("key", key))
		return errors.ValidationError("no fetcher for key " + key)
	}

	value, err := fetcher(ctx, key)
	if err != nil {
		r.logger.Warn("refresh fetch failed",
			logging.String("key", key),
			logging.Err(err),
		)
		return err
	}

	if _, err := r.cache.Set(ctx, key, value, Options{Source: source}); err != nil {
		return err
	}
	return nil
}
