package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"civic-cache/internal/common/errors"
	"civic-cache/internal/common/logging"
)

// DefaultTTL applies when a caller omits a TTL and the cache was built
// without one.
const DefaultTTL = 5 * time.Minute

// UnifiedCache coordinates the shared Redis tier and the in-process
// fallback tier. Reads prefer Redis (consistent across restarts and
// instances); the fallback is a resilience tier, not a latency tier.
// Writes go to both stores, each best-effort and independent: there is
// deliberately no transaction across them, since the stores serve
// different purposes (shared durability vs. local resilience) and a brief
// divergence window between the two writes is acceptable.
//
// The coordinator holds no state between calls beyond its configuration;
// every method's behavior depends only on current store contents.
type UnifiedCache struct {
	remote     RemoteStore
	fallback   *MemoryStore
	defaultTTL time.Duration
	logger     logging.Logger
}

// NewUnifiedCache creates a coordinator over the given stores. A zero
// defaultTTL falls back to DefaultTTL.
func NewUnifiedCache(remote RemoteStore, fallback *MemoryStore, defaultTTL time.Duration, logger logging.Logger) *UnifiedCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &UnifiedCache{
		remote:     remote,
		fallback:   fallback,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get returns the cached value for key, or (nil, false) on a total miss.
// Redis is consulted first; the fallback store is read only when Redis
// misses or is disconnected, never to double-check a Redis hit.
func (u *UnifiedCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	if u.remote.Connected() {
		var ent Entry
		if u.remote.Get(ctx, key, &ent) && !ent.Expired() {
			return ent.Value, true
		}
	}

	if ent, found := u.fallback.Get(key); found && !ent.Expired() {
		return ent.Value, true
	}

	return nil, false
}

// Set writes the value to both stores concurrently. Each write is
// best-effort: a Redis failure never prevents the fallback write and
// vice versa. Per-store outcomes are surfaced in the result for
// observability, not as errors. The only error returned is a validation
// error for malformed arguments, which indicates a caller bug.
func (u *UnifiedCache) Set(ctx context.Context, key string, value interface{}, opts Options) (SetResult, error) {
	if key == "" {
		return SetResult{}, errors.ValidationError("cache key must not be empty")
	}
	if opts.Source == "" {
		return SetResult{}, errors.ValidationError("cache options require a source tag")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = u.defaultTTL
	}

	now := time.Now()
	ent := Entry{
		Value:     value,
		Source:    opts.Source,
		DataType:  opts.DataType,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	var result SetResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Remote = u.remote.Set(gctx, key, ent, ttl)
		return nil
	})
	g.Go(func() error {
		u.fallback.Set(key, ent, ttl)
		result.Fallback = true
		return nil
	})
	_ = g.Wait()

	if !result.Remote {
		u.logger.Debug("cache set reached fallback store only", logging.String("key", key))
	}
	return result, nil
}

// InvalidatePattern deletes every entry in both stores whose key contains
// pattern and returns the per-store deletion counts. Idempotent: a second
// invalidation of an unchanged key set deletes nothing. A store that is
// unreachable contributes a zero count rather than an error.
func (u *UnifiedCache) InvalidatePattern(ctx context.Context, pattern string) (InvalidationResult, error) {
	if pattern == "" {
		return InvalidationResult{}, errors.ValidationError("invalidation pattern must not be empty")
	}

	var result InvalidationResult

	for _, key := range u.remote.ScanPattern(ctx, pattern) {
		if u.remote.Delete(ctx, key) {
			result.Remote++
		}
	}

	for _, key := range u.fallback.ScanPattern(pattern) {
		if u.fallback.Delete(key) {
			result.Fallback++
		}
	}

	u.logger.Info("cache pattern invalidated",
		logging.String("pattern", pattern),
		logging.Int("remote", result.Remote),
		logging.Int("fallback", result.Fallback),
	)
	return result, nil
}

// Clear empties both stores, optionally scoped to keys starting with
// prefix. Intended for administrative resets and test isolation, not
// normal operation.
func (u *UnifiedCache) Clear(ctx context.Context, prefix string) {
	remote := u.remote.Clear(ctx, prefix)
	fallback := u.fallback.Clear(prefix)
	u.logger.Info("cache cleared",
		logging.String("prefix", prefix),
		logging.Int("remote", remote),
		logging.Int("fallback", fallback),
	)
}

// Stats recomputes a point-in-time snapshot of both tiers plus the
// combined view. Combined.TotalEntries is the union of distinct keys in
// either store; Redundancy is the fraction of that union present in both
// tiers.
func (u *UnifiedCache) Stats(ctx context.Context) Stats {
	remoteKeys := u.remote.ScanPattern(ctx, "")
	fallbackKeys := u.fallback.ScanPattern("")

	union := make(map[string]int, len(remoteKeys)+len(fallbackKeys))
	for _, key := range remoteKeys {
		union[key]++
	}
	for _, key := range fallbackKeys {
		union[key]++
	}

	both := 0
	for _, count := range union {
		if count > 1 {
			both++
		}
	}

	redundancy := 0.0
	if len(union) > 0 {
		redundancy = float64(both) / float64(len(union))
	}

	remoteTotal, remoteActive := u.remote.Stats(ctx)

	return Stats{
		Redis: StoreStats{
			TotalEntries:  remoteTotal,
			ActiveEntries: remoteActive,
		},
		Fallback: u.fallback.Stats(),
		Combined: CombinedStats{
			TotalEntries: len(union),
			Redundancy:   redundancy,
		},
	}
}
