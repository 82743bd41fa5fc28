package piwebapi

import (
	"context"
	"errors"

	"github.com/pideploy/pideploy/internal/cache"
	"github.com/pideploy/pideploy/pkg/logger"
)

// CachedResolver resolves object paths to WebIds, remembering the answers.
type CachedResolver struct {
	client *Client
	cache  *cache.WebIDCache
	log    *logger.Logger
}

// NewCachedResolver creates a resolver. A nil cache disables caching.
func NewCachedResolver(client *Client, webIDs *cache.WebIDCache, log *logger.Logger) *CachedResolver {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedResolver{client: client, cache: webIDs, log: log}
}

// WebID returns the WebId of the object at path in a resource collection.
func (r *CachedResolver) WebID(ctx context.Context, resource, path string) (string, error) {
	if r.cache != nil {
		webID, err := r.cache.Get(ctx, resource, path)
		if err == nil {
			return webID, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("WebId cache read failed", "resource", resource, "path", path, "error", err.Error())
		}
	}

	obj, err := r.client.ByPath(ctx, resource, path)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, resource, path, obj.WebID); err != nil {
			r.log.Warn("WebId cache write failed", "resource", resource, "path", path, "error", err.Error())
		}
	}
	return obj.WebID, nil
}

// Forget drops a cached path, used after deleting or renaming the object.
func (r *CachedResolver) Forget(ctx context.Context, resource, path string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, resource, path); err != nil {
		r.log.Warn("WebId cache delete failed", "resource", resource, "path", path, "error", err.Error())
	}
}

// Client returns the underlying client.
func (r *CachedResolver) Client() *Client {
	return r.client
}
