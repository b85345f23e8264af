package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-cache/internal/cache"
	"civic-cache/internal/common/logging"
	"civic-cache/internal/config"
)

// stubRemote is a connected in-memory RemoteStore for handler tests.
type stubRemote struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *stubRemote) Connected() bool { return true }

func (s *stubRemote) Get(ctx context.Context, key string, dest interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (s *stubRemote) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return false
	}
	s.data[key] = b
	return true
}

func (s *stubRemote) Delete(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.data[key]
	delete(s.data, key)
	return existed
}

func (s *stubRemote) ScanPattern(ctx context.Context, pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.data {
		if pattern == "" || strings.Contains(key, pattern) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *stubRemote) Clear(ctx context.Context, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.data {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted
}

func (s *stubRemote) Stats(ctx context.Context) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data), len(s.data)
}

func setupHandlers(t *testing.T) (*Handlers, *cache.UnifiedCache) {
	t.Helper()

	logger := logging.NewNopLogger()
	remote := &stubRemote{data: make(map[string][]byte)}
	unified := cache.NewUnifiedCache(remote, cache.NewMemoryStore(time.Minute, time.Hour), time.Minute, logger)
	refresher := cache.NewRefresher(unified, logger)
	refresher.RegisterFetcher("hot:key", func(ctx context.Context, key string) (interface{}, error) {
		return "fresh", nil
	})

	cfg := &config.Config{RefreshMaxConcurrent: 2}
	return New(unified, refresher, remote, cfg, logger), unified
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["redis_connected"])
}

func TestGetStats(t *testing.T) {
	h, unified := setupHandlers(t)

	_, err := unified.Set(context.Background(), "key", "value", cache.Options{Source: "test"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest("GET", "/api/cache/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	combined := body["combined"].(map[string]interface{})
	assert.Equal(t, float64(1), combined["total_entries"])
}

func TestInvalidatePattern(t *testing.T) {
	h, unified := setupHandlers(t)
	ctx := context.Background()

	for _, key := range []string{"test:pattern:1", "test:pattern:2", "other:data"} {
		_, err := unified.Set(ctx, key, "value", cache.Options{Source: "test"})
		require.NoError(t, err)
	}

	t.Run("deletes matches", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/invalidate", strings.NewReader(`{"pattern":"test:pattern"}`))
		h.InvalidatePattern(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["remote"])
		assert.Equal(t, float64(2), body["fallback"])
	})

	t.Run("empty pattern rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/invalidate", strings.NewReader(`{"pattern":""}`))
		h.InvalidatePattern(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/invalidate", strings.NewReader("not json"))
		h.InvalidatePattern(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClearCache(t *testing.T) {
	h, unified := setupHandlers(t)
	ctx := context.Background()

	_, err := unified.Set(ctx, "key", "value", cache.Options{Source: "test"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ClearCache(rec, httptest.NewRequest("DELETE", "/api/cache", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	_, found := unified.Get(ctx, "key")
	assert.False(t, found)
}

func TestTriggerRefresh(t *testing.T) {
	h, unified := setupHandlers(t)

	t.Run("full profile", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/refresh", strings.NewReader(`{"profile":"full"}`))
		h.TriggerRefresh(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(1), body["total_processed"])
		assert.Equal(t, float64(1), body["successful"])

		value, found := unified.Get(context.Background(), "hot:key")
		require.True(t, found)
		assert.Equal(t, "fresh", value)
	})

	t.Run("explicit keys without fetchers fail soft", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/refresh", strings.NewReader(`{"keys":["unknown:1","unknown:2"]}`))
		h.TriggerRefresh(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["total_processed"])
		assert.Equal(t, float64(2), body["failed"])
	})

	t.Run("unknown profile rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/refresh", strings.NewReader(`{"profile":"turbo"}`))
		h.TriggerRefresh(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
