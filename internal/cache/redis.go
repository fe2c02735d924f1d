// Package cache keeps computed reports in Redis. Keys are namespaced by a
// generation counter; Invalidate bumps the generation so every older entry
// becomes unreachable and ages out through its TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "campaign-etl:report"
	genSuffix     = ":gen"
)

type ReportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, prefix: defaultPrefix, ttl: ttl}
}

// Dial parses a redis:// URL and returns a connected client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (c *ReportCache) generation(ctx context.Context) (int64, error) {
	g, err := c.client.Get(ctx, c.prefix+genSuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return g, err
}

func (c *ReportCache) key(gen int64, k string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, k)
}

// Get decodes the entry for k into dst and reports whether it existed. The
// returned generation is the one to pass to Set for a value computed after
// this call.
func (c *ReportCache) Get(ctx context.Context, k string, dst any) (int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, err
	}
	b, err := c.client.Get(ctx, c.key(gen, k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return gen, false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return gen, true, nil
}

// Set stores v under generation gen. A value written for a generation that
// has since been invalidated is never read back.
func (c *ReportCache) Set(ctx context.Context, gen int64, k string, v any) error {
	if c.ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return c.client.Set(ctx, c.key(gen, k), b, c.ttl).Err()
}

func (c *ReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.prefix+genSuffix).Err()
}
