// Package cache provides in-memory caching for video metadata.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
)

// MetadataCache caches probe results keyed by URL so repeated links do
// not trigger repeated yt-dlp metadata calls.
type MetadataCache struct {
	cache *gocache.Cache
}

// New creates a MetadataCache with the given TTL and cleanup interval.
func New(ttl, cleanupInterval time.Duration) *MetadataCache {
	return &MetadataCache{
		cache: gocache.New(ttl, cleanupInterval),
	}
}

// Default creates a MetadataCache with default settings.
// TTL: 1 hour, Cleanup: 10 minutes
func Default() *MetadataCache {
	return New(time.Hour, 10*time.Minute)
}

// Get retrieves video info from cache.
func (c *MetadataCache) Get(url string) (*domain.VideoInfo, bool) {
	if item, found := c.cache.Get(url); found {
		if info, ok := item.(*domain.VideoInfo); ok {
			return info, true
		}
	}
	return nil, false
}

// Set stores video info in cache.
func (c *MetadataCache) Set(url string, info *domain.VideoInfo) {
	c.cache.Set(url, info, gocache.DefaultExpiration)
}

// Flush removes all items from cache.
func (c *MetadataCache) Flush() {
	c.cache.Flush()
}

// ItemCount returns the number of items in cache.
func (c *MetadataCache) ItemCount() int {
	return c.cache.ItemCount()
}
