// Package cache implements the unified two-tier caching core that sits in
// front of the rate-limited government data APIs.
//
// Tiers:
//
// 1. Redis (primary) - shared across process restarts and instances
//   - native TTL expiry
//   - JSON serialization
//   - every call soft-fails when the server is unreachable
//
// 2. Memory store (fallback) - process-local, patrickmn/go-cache
//   - answers when Redis is down
//   - lazy expiry plus a periodic sweep
//
// Reads try Redis first and fall back to memory; writes go to both stores
// concurrently, each best-effort. Pattern invalidation, prefix clear and
// aggregated statistics operate across both tiers. A Refresher
// repopulates registered hot keys in rate-limit-friendly batches, either
// on demand or on a cron schedule.
//
// Usage:
//
//	remote, _ := redis.NewClient(&redis.Config{Address: addr, KeyPrefix: "civiq:cache:"}, logger)
//	unified := cache.NewUnifiedCache(remote, cache.NewMemoryStore(5*time.Minute, 10*time.Minute), 5*time.Minute, logger)
//
//	unified.Set(ctx, "congress:member:H001:votes", votes, cache.Options{Source: "congress-api"})
//	value, found := unified.Get(ctx, "congress:member:H001:votes")
//	unified.InvalidatePattern(ctx, "member:H001")
package cache
