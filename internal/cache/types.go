package cache

import (
	"context"
	"time"
)

// Entry is the stored representation of a cached value in either tier.
// The payload is opaque: the cache never inspects Value, it only passes
// it through JSON serialization on the Redis side.
type Entry struct {
	Value     interface{} `json:"value"`
	Source    string      `json:"source"`
	DataType  string      `json:"data_type,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the entry is logically absent. An expired entry
// may still be physically present in a store until it is swept.
func (e Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Options carries the per-write policy for Set. Source identifies the
// producer (e.g. "fec-api", "congress-api") and is required; TTL falls
// back to the cache's default when zero.
type Options struct {
	TTL      time.Duration
	Source   string
	DataType string
}

// StoreStats is a point-in-time snapshot of one tier. TotalEntries counts
// physically stored keys including lazily-unswept expired ones;
// ActiveEntries counts only non-expired keys.
type StoreStats struct {
	TotalEntries  int `json:"total_entries"`
	ActiveEntries int `json:"active_entries"`
}

// CombinedStats aggregates both tiers. TotalEntries is the number of
// distinct keys present in either store. Redundancy is
// |keys in both stores| / |keys in either store| (0 for an empty union):
// a low value means the fallback store offers little coverage if Redis
// goes away.
type CombinedStats struct {
	TotalEntries int     `json:"total_entries"`
	Redundancy   float64 `json:"redundancy"`
}

// Stats is the aggregated view returned by UnifiedCache.Stats. Always
// recomputed from live store state, never persisted.
type Stats struct {
	Redis    StoreStats    `json:"redis"`
	Fallback StoreStats    `json:"fallback"`
	Combined CombinedStats `json:"combined"`
}

// InvalidationResult reports per-store deletion counts for a pattern
// invalidation. A store that failed mid-scan contributes the deletions
// that did complete; callers can compare counts to detect partial
// success.
type InvalidationResult struct {
	Remote   int `json:"remote"`
	Fallback int `json:"fallback"`
}

// SetResult reports which tiers accepted a write. Both writes are
// best-effort and independent, so one flag can be false while the other
// is true.
type SetResult struct {
	Remote   bool `json:"remote"`
	Fallback bool `json:"fallback"`
}

// RemoteStore is the contract the coordinator needs from the shared
// primary tier. *redis.Client satisfies it; tests substitute a stub to
// simulate disconnection and partial write failures.
type RemoteStore interface {
	Connected() bool
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	ScanPattern(ctx context.Context, pattern string) []string
	Clear(ctx context.Context, prefix string) int
	Stats(ctx context.Context) (total, active int)
}
