// Package cache is the short-TTL read-through cache in front of catalog
// queries. A nil or disabled Client is valid and always falls through to the
// fetch function.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"fitstogo/internal/logging"
)

// Lookup outcomes reported to the observer.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Client wraps a redis connection.
type Client struct {
	rdb      *redis.Client
	logger   *slog.Logger
	observer func(result string)
}

// Option customizes the client.
type Option func(*Client)

// WithLogger sets the logger used for degraded-cache warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a callback receiving every lookup outcome.
func WithObserver(observer func(result string)) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := New(redis.NewClient(options), opts...)
	if err := client.rdb.Ping(ctx).Err(); err != nil {
		_ = client.rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New wraps an existing redis client.
func New(rdb *redis.Client, opts ...Option) *Client {
	client := &Client{rdb: rdb, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "cache")
	return client
}

// Enabled reports whether lookups reach redis.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) observe(result string) {
	if c != nil && c.observer != nil {
		c.observer(result)
	}
}

// GetCached returns the JSON value stored at key, or calls fetch and stores
// its result for ttl. Redis failures are logged and never fail the call.
func GetCached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return fetch(ctx)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var value T
		decodeErr := json.Unmarshal(raw, &value)
		if decodeErr == nil {
			c.observe(ResultHit)
			return value, nil
		}
		c.logger.Warn("discarding undecodable cache entry",
			logging.String("key", key),
			logging.Error(decodeErr),
			logging.String(logging.FieldEventType, "cache_decode_failed"),
			logging.String(logging.FieldErrorHint, "entry will be overwritten on next fetch"),
		)
		c.observe(ResultMiss)
	case errors.Is(err, redis.Nil):
		c.observe(ResultMiss)
	default:
		c.observe(ResultError)
		c.logger.Warn("cache read failed; querying source",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_read_failed"),
			logging.String(logging.FieldErrorHint, "check redis connectivity"),
			logging.String(logging.FieldImpact, "catalog reads bypass the cache"),
		)
	}

	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}
	if encoded, encodeErr := json.Marshal(value); encodeErr == nil {
		if setErr := c.rdb.Set(ctx, key, encoded, ttl).Err(); setErr != nil {
			c.logger.Warn("cache write failed",
				logging.String("key", key),
				logging.Error(setErr),
				logging.String(logging.FieldEventType, "cache_write_failed"),
				logging.String(logging.FieldErrorHint, "check redis connectivity"),
			)
		}
	}
	return value, nil
}

// InvalidatePattern deletes every key matching a glob pattern and returns the
// number removed.
func (c *Client) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	removed := 0
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("delete %s: %w", pattern, err)
	}
	return removed, nil
}
