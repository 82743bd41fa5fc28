package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pideploy/pideploy/internal/metrics"
)

// WebIDCache maps PI object paths to their WebIds.
type WebIDCache struct {
	cache      Cache
	keyPrefix  string
	defaultTTL time.Duration
}

// NewWebIDCache creates a WebId cache on top of a Cache.
func NewWebIDCache(cache Cache, keyPrefix string, defaultTTL time.Duration) *WebIDCache {
	if keyPrefix == "" {
		keyPrefix = "webid:"
	}
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &WebIDCache{
		cache:      cache,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

// Key builds the cache key for a resource kind and path. Paths are case
// insensitive in PI so they are folded.
func (c *WebIDCache) Key(resource, path string) string {
	return c.keyPrefix + resource + ":" + strings.ToLower(path)
}

// Get returns the cached WebId for a path.
func (c *WebIDCache) Get(ctx context.Context, resource, path string) (string, error) {
	data, err := c.cache.Get(ctx, c.Key(resource, path))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			metrics.RecordCacheMiss()
		}
		return "", err
	}
	metrics.RecordCacheHit()
	return string(data), nil
}

// Set stores a WebId with the default TTL.
func (c *WebIDCache) Set(ctx context.Context, resource, path, webID string) error {
	return c.cache.Set(ctx, c.Key(resource, path), []byte(webID), c.defaultTTL)
}

// Delete evicts a path, used after the object is deleted.
func (c *WebIDCache) Delete(ctx context.Context, resource, path string) error {
	return c.cache.Delete(ctx, c.Key(resource, path))
}

// Ping checks the backing cache.
func (c *WebIDCache) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}
