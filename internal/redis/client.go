// Package redis wraps the shared Redis instance used as the primary cache
// tier. Every operation degrades to a documented soft-failure return value
// when Redis is unreachable; connectivity errors are logged, never
// propagated. Callers cannot distinguish "not present" from "store
// unreachable" here, which is intentional: the unified cache treats both
// as a miss and falls back to the in-memory store.
package redis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"civic-cache/internal/common/errors"
	"civic-cache/internal/common/logging"
)

const (
	defaultOpTimeout   = 5 * time.Second
	healthPingInterval = 15 * time.Second
	deleteBatchSize    = 100
)

// Config holds Redis connection settings.
type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
	// OpTimeout bounds every round-trip so a hung backend cannot block a
	// cache read or write indefinitely.
	OpTimeout time.Duration `json:"op_timeout"`
}

// Client is the Remote Store Adapter over a shared Redis instance. All
// keys are namespaced with Config.KeyPrefix so the instance can be shared
// with unrelated applications.
type Client struct {
	rdb       *redis.Client
	breaker   *gobreaker.CircuitBreaker
	config    *Config
	logger    logging.Logger
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Redis client. An unreachable server is not an
// error: the client starts disconnected, the unified cache serves from
// the fallback store, and the background health loop picks the
// connection up when Redis returns.
func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil {
		return nil, errors.ConfigError("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = defaultOpTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	c := &Client{
		rdb:    rdb,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Redis circuit breaker state changed",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.OpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable at startup, serving from fallback store",
			logging.String("address", config.Address),
			logging.Err(err),
		)
	} else {
		c.connected.Store(true)
		logger.Info("Redis connected", logging.String("address", config.Address))
	}

	go c.monitor()

	return c, nil
}

// Close stops the health loop and releases the connection pool.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.rdb.Close()
}

// Connected reports the current connectivity state. It never blocks and
// is false until the first successful ping and while the circuit breaker
// is open.
func (c *Client) Connected() bool {
	return c.connected.Load() && c.breaker.State() != gobreaker.StateOpen
}

// Get reads and JSON-decodes the value for key into dest. Returns false
// on miss, on a corrupt payload, or on any connectivity error.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) bool {
	var data []byte
	miss := false

	ok := c.execute(ctx, "get", func(ctx context.Context) error {
		b, err := c.rdb.Get(ctx, c.namespaced(key)).Bytes()
		if err == redis.Nil {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if !ok || miss {
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Redis payload undecodable, treating as miss",
			logging.String("key", key),
			logging.Err(err),
		)
		return false
	}
	return true
}

// Set JSON-encodes value and writes it with a native Redis TTL. Returns
// a soft success flag; a connectivity or encoding failure is swallowed.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Redis set skipped, value not serializable",
			logging.String("key", key),
			logging.Err(err),
		)
		return false
	}

	return c.execute(ctx, "set", func(ctx context.Context) error {
		return c.rdb.Set(ctx, c.namespaced(key), data, ttl).Err()
	})
}

// Delete removes a key and reports whether it existed.
func (c *Client) Delete(ctx context.Context, key string) bool {
	existed := false
	ok := c.execute(ctx, "delete", func(ctx context.Context) error {
		n, err := c.rdb.Del(ctx, c.namespaced(key)).Result()
		if err != nil {
			return err
		}
		existed = n > 0
		return nil
	})
	return ok && existed
}

// ScanPattern returns the un-namespaced keys in this application's
// namespace that contain pattern. An empty pattern matches every key.
// If the scan fails midway the keys collected so far are returned; a
// partial list is acceptable for best-effort invalidation.
func (c *Client) ScanPattern(ctx context.Context, pattern string) []string {
	var keys []string
	c.execute(ctx, "scan", func(ctx context.Context) error {
		iter := c.rdb.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			key := strings.TrimPrefix(iter.Val(), c.config.KeyPrefix)
			if pattern == "" || strings.Contains(key, pattern) {
				keys = append(keys, key)
			}
		}
		return iter.Err()
	})
	return keys
}

// Clear deletes every key in this application's namespace, or only keys
// starting with prefix if one is given, and returns the number deleted.
// Keys outside the namespace are never touched.
func (c *Client) Clear(ctx context.Context, prefix string) int {
	var matched []string
	for _, key := range c.ScanPattern(ctx, "") {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			matched = append(matched, c.namespaced(key))
		}
	}
	if len(matched) == 0 {
		return 0
	}

	deleted := 0
	for start := 0; start < len(matched); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(matched) {
			end = len(matched)
		}
		batch := matched[start:end]
		c.execute(ctx, "clear", func(ctx context.Context) error {
			n, err := c.rdb.Del(ctx, batch...).Result()
			if err != nil {
				return err
			}
			deleted += int(n)
			return nil
		})
	}
	return deleted
}

// Stats counts the keys in this application's namespace. Redis expires
// entries natively, so total and active are the same number.
func (c *Client) Stats(ctx context.Context) (total, active int) {
	n := len(c.ScanPattern(ctx, ""))
	return n, n
}

func (c *Client) namespaced(key string) string {
	return c.config.KeyPrefix + key
}

// execute wraps a Redis round-trip with the bounded timeout and the
// circuit breaker. A miss is not a failure; callers signal it out of
// band. Returns false when the operation did not complete.
func (c *Client) execute(ctx context.Context, op string, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			c.logger.Debug("Redis operation short-circuited", logging.String("op", op))
		} else {
			c.connected.Store(false)
			c.logger.Warn("Redis operation failed",
				logging.String("op", op),
				logging.Err(err),
			)
		}
		return false
	}

	c.connected.Store(true)
	return true
}

// monitor keeps the connectivity flag current so Connected() stays
// accurate even when no cache traffic is flowing. Reconnection is the
// go-redis pool's job; this loop only observes it.
func (c *Client) monitor() {
	ticker := time.NewTicker(healthPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.OpTimeout)
			err := c.rdb.Ping(ctx).Err()
			cancel()

			if err != nil {
				if c.connected.CompareAndSwap(true, false) {
					c.logger.Warn("Redis connection lost", logging.Err(err))
				}
			} else {
				if c.connected.CompareAndSwap(false, true) {
					c.logger.Info("Redis connection restored")
				}
			}
		}
	}
}
