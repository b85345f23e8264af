package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-cache/internal/common/logging"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&Config{
		Address:   mr.Addr(),
		KeyPrefix: "test:cache:",
		OpTimeout: 2 * time.Second,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client, err := NewClient(nil, logging.NewNopLogger())
		assert.Error(t, err)
		assert.Nil(t, client)
	})

	t.Run("successful connection", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.True(t, client.Connected())
	})

	t.Run("unreachable server is not fatal", func(t *testing.T) {
		client, err := NewClient(&Config{
			Address:   "localhost:1",
			KeyPrefix: "test:cache:",
			OpTimeout: 500 * time.Millisecond,
		}, logging.NewNopLogger())
		require.NoError(t, err)
		defer client.Close()

		assert.False(t, client.Connected())
	})

	t.Run("applies defaults", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		config := &Config{Address: mr.Addr()}
		client, err := NewClient(config, logging.NewNopLogger())
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
		assert.Equal(t, defaultOpTimeout, config.OpTimeout)
	})
}

func TestClient_GetSet(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		value := map[string]interface{}{"message": "hello world"}
		ok := client.Set(ctx, "test:basic", value, time.Hour)
		assert.True(t, ok)

		var result map[string]interface{}
		found := client.Get(ctx, "test:basic", &result)
		assert.True(t, found)
		assert.Equal(t, value, result)
	})

	t.Run("miss", func(t *testing.T) {
		var result map[string]interface{}
		found := client.Get(ctx, "missing:key", &result)
		assert.False(t, found)
	})

	t.Run("unserializable value soft-fails", func(t *testing.T) {
		ok := client.Set(ctx, "test:bad", make(chan int), time.Hour)
		assert.False(t, ok)
	})

	t.Run("corrupt payload treated as miss", func(t *testing.T) {
		client, mr := setupTestClient(t)
		mr.Set("test:cache:corrupt", "{not json")

		var result map[string]interface{}
		found := client.Get(ctx, "corrupt", &result)
		assert.False(t, found)
	})
}

func TestClient_TTL(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	ok := client.Set(ctx, "expiring", "soon gone", 1*time.Second)
	require.True(t, ok)

	var result string
	assert.True(t, client.Get(ctx, "expiring", &result))

	mr.FastForward(2 * time.Second)

	assert.False(t, client.Get(ctx, "expiring", &result))
}

func TestClient_Delete(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.True(t, client.Set(ctx, "doomed", "value", time.Hour))

	assert.True(t, client.Delete(ctx, "doomed"))
	assert.False(t, client.Delete(ctx, "doomed"))
}

func TestClient_ScanPattern(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	require.True(t, client.Set(ctx, "congress:member:H001", "a", time.Hour))
	require.True(t, client.Set(ctx, "congress:member:S002", "b", time.Hour))
	require.True(t, client.Set(ctx, "fec:filing:9", "c", time.Hour))

	// A key from an unrelated application sharing the Redis instance.
	mr.Set("other:app:key", "x")

	t.Run("substring match", func(t *testing.T) {
		keys := client.ScanPattern(ctx, "congress:member")
		assert.ElementsMatch(t, []string{"congress:member:H001", "congress:member:S002"}, keys)
	})

	t.Run("empty pattern matches namespace only", func(t *testing.T) {
		keys := client.ScanPattern(ctx, "")
		assert.Len(t, keys, 3)
		assert.NotContains(t, keys, "other:app:key")
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, client.ScanPattern(ctx, "census"))
	})
}

func TestClient_Clear(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	require.True(t, client.Set(ctx, "congress:member:H001", "a", time.Hour))
	require.True(t, client.Set(ctx, "congress:member:S002", "b", time.Hour))
	require.True(t, client.Set(ctx, "fec:filing:9", "c", time.Hour))
	mr.Set("other:app:key", "x")

	t.Run("by prefix", func(t *testing.T) {
		deleted := client.Clear(ctx, "congress")
		assert.Equal(t, 2, deleted)

		var v string
		assert.True(t, client.Get(ctx, "fec:filing:9", &v))
	})

	t.Run("entire namespace", func(t *testing.T) {
		deleted := client.Clear(ctx, "")
		assert.Equal(t, 1, deleted)

		// Foreign keys on the shared instance are untouched.
		foreign, err := mr.Get("other:app:key")
		require.NoError(t, err)
		assert.Equal(t, "x", foreign)
	})
}

func TestClient_Stats(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	total, active := client.Stats(ctx)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, active)

	require.True(t, client.Set(ctx, "a", 1, time.Hour))
	require.True(t, client.Set(ctx, "b", 2, time.Hour))

	total, active = client.Stats(ctx)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, active)
}

func TestClient_SoftFailure(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	require.True(t, client.Set(ctx, "before", "value", time.Hour))

	mr.Close()

	assert.False(t, client.Set(ctx, "after", "value", time.Hour))

	var result string
	assert.False(t, client.Get(ctx, "before", &result))
	assert.False(t, client.Delete(ctx, "before"))
	assert.Empty(t, client.ScanPattern(ctx, ""))
	assert.Equal(t, 0, client.Clear(ctx, ""))

	assert.False(t, client.Connected())
}

func TestClient_BreakerShortCircuits(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	mr.Close()

	// Enough consecutive failures to trip the breaker.
	for i := 0; i < 6; i++ {
		client.Set(ctx, "key", "value", time.Hour)
	}

	assert.False(t, client.Connected())

	var result string
	assert.False(t, client.Get(ctx, "key", &result))
}
