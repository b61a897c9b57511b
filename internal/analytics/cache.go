package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "analytics:version"
	cacheKeyPrefix  = "analytics:"
)

// Cache memoizes analytics results in Redis under versioned keys. Bumping the
// version invalidates every cached result at once: any completed import can
// shift rankings, trend buckets and classification boundaries, so partial
// invalidation is deliberately not offered.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes a cache key from the operation name and its normalized
// parameters, suffixed with the current version.
func (c *Cache) BuildKey(ctx context.Context, op string, params ...string) (string, error) {
	parts := append([]string{strings.TrimSuffix(cacheKeyPrefix, ":"), op}, params...)
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return joined + ":" + formatInt(ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. With force
// set, the cached value is ignored and the loader result overwrites it.
func (c *Cache) FetchJSON(ctx context.Context, key string, force bool, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	if !force {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if err != redis.Nil {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// Stats describes the live cache contents for operational visibility.
type Stats struct {
	Version int64    `json:"version"`
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

// Stats scans for live analytics keys. Entries whose version suffix no longer
// matches are stale and excluded; they age out via TTL.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	if c == nil || c.client == nil {
		return Stats{}, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Version: ver, Keys: []string{}}
	suffix := ":" + formatInt(ver)

	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == cacheVersionKey || !strings.HasSuffix(key, suffix) {
			continue
		}
		stats.Keys = append(stats.Keys, key)
	}
	if err := iter.Err(); err != nil {
		return Stats{}, err
	}
	stats.Entries = len(stats.Keys)
	return stats, nil
}
