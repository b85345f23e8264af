package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process fallback tier, built on patrickmn/go-cache.
// It survives only for the process lifetime and exists so the unified
// cache keeps answering when Redis is unreachable. Expired entries are
// evicted lazily on read and swept on the cleanup interval; until swept
// they still count toward TotalEntries.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a fallback store. defaultTTL applies when Set is
// called with a zero TTL; cleanupInterval controls the expired-entry
// sweep.
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Set stores an entry with expiry now+ttl, overwriting any existing entry
// for key. It never fails for a valid string key.
func (m *MemoryStore) Set(key string, ent Entry, ttl time.Duration) {
	m.cache.Set(key, ent, ttl)
}

// Get returns the entry for key, or false if it is absent or expired.
func (m *MemoryStore) Get(key string) (Entry, bool) {
	v, found := m.cache.Get(key)
	if !found {
		return Entry{}, false
	}
	ent, ok := v.(Entry)
	if !ok {
		return Entry{}, false
	}
	return ent, true
}

// Delete removes an entry and reports whether one existed.
func (m *MemoryStore) Delete(key string) bool {
	_, existed := m.cache.Get(key)
	m.cache.Delete(key)
	return existed
}

// ScanPattern returns all non-expired keys containing pattern. An empty
// pattern matches every key.
func (m *MemoryStore) ScanPattern(pattern string) []string {
	var keys []string
	for key := range m.cache.Items() {
		if pattern == "" || strings.Contains(key, pattern) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear deletes all entries, or only entries whose key starts with prefix
// if one is given, and returns the number deleted.
func (m *MemoryStore) Clear(prefix string) int {
	if prefix == "" {
		count := m.cache.ItemCount()
		m.cache.Flush()
		return count
	}

	deleted := 0
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
			deleted++
		}
	}
	return deleted
}

// Stats counts physically stored entries (including unswept expired
// ones) and the non-expired subset.
func (m *MemoryStore) Stats() StoreStats {
	return StoreStats{
		TotalEntries:  m.cache.ItemCount(),
		ActiveEntries: len(m.cache.Items()),
	}
}
